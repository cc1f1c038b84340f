package api

import (
	"net/http"
	"sync"

	"github.com/nadajinny/GROO/app"
	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/httpx"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entrypoint. The runtime is built once per cold
// start and reused by warm invocations.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{LoadDotEnv: false})
	})

	if initErr != nil {
		httpx.WriteError(w, apperror.ErrInternal.WithMessage("application bootstrap failed"))
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
