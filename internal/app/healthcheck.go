package app

import (
	"net/http"

	"github.com/metinatakli/cinex-booking/api"
)

func (app *Application) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthcheckResponse{
		Status: "UP",
		SystemInfo: api.SystemInfo{
			Version:     version,
			Environment: app.config.Env,
			Storage:     app.config.Storage,
			HoldTime:    int(app.holds.HoldTTL().Seconds()),
		},
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
