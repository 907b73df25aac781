package creds

import (
	"encoding/json"
	"net/http"

	"github.com/2beens/gymsheets/pkg"

	log "github.com/sirupsen/logrus"
)

// Credentials is the public client configuration the SPA needs to start the
// Google consent flow. Not secret, but kept out of the served bundle so it
// can be rotated without a redeploy.
type Credentials struct {
	ClientID string `json:"CLIENT_ID"`
	APIKey   string `json:"API_KEY"`
}

type Handler struct {
	credentials Credentials
}

func NewHandler(credentials Credentials) *Handler {
	return &Handler{
		credentials: credentials,
	}
}

// ServeHTTP answers GET with the credentials JSON and refuses every other
// method. CORS is wide open, any origin may bootstrap the client.
func (handler *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	credsJson, err := json.Marshal(handler.credentials)
	if err != nil {
		log.Errorf("credentials handler, marshal: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, credsJson, http.StatusOK)
}
