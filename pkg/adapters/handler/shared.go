package handler

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

var sharedPage = template.Must(template.New("shared").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  {{- if .TargetURL}}
  <meta http-equiv="refresh" content="{{.DelaySeconds}};url={{.TargetURL}}">
  {{- end}}
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; background: #16213e; color: #fff; text-align: center; padding: 50px 20px; }
    .card { max-width: 480px; margin: 0 auto; background: rgba(255,255,255,0.08); border-radius: 12px; padding: 24px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; }
    a.go { display: inline-block; margin-top: 20px; padding: 10px 20px; background: #10b981; color: #fff; border-radius: 6px; text-decoration: none; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
  {{- with .Identity}}
  <div class="card">
    <div class="row"><span>Address</span><span>{{.NetworkOrigin.Address}}</span></div>
    <div class="row"><span>Location</span><span>{{.NetworkOrigin.Location}}</span></div>
    <div class="row"><span>Provider</span><span>{{.NetworkOrigin.Provider}}</span></div>
    <div class="row"><span>Platform</span><span>{{.Fingerprint.Platform}}</span></div>
  </div>
  {{- end}}
  {{- if .TargetURL}}
  <a class="go" href="{{.TargetURL}}">Continue to {{.TargetHost}}</a>
  {{- end}}
</body>
</html>
`))

type sharedView struct {
	Title        string
	Message      string
	Identity     *domain.Identity
	TargetURL    string
	TargetHost   string
	DelaySeconds int
}

var refusalPages = map[string]sharedView{
	"not_found":          {Title: "Link not found", Message: "This link does not exist or has been removed."},
	"deactivated":        {Title: "Link not found", Message: "This link does not exist or has been removed."},
	"expired":            {Title: "Link expired", Message: "This link has expired."},
	"exhausted":          {Title: "Link used up", Message: "This link has reached its usage limit."},
	"device_not_allowed": {Title: "Device not allowed", Message: "This link can only be opened from a desktop browser."},
}

// Shared is the browser-facing interstitial. It redeems the link and redirects
// to the target after the configured delay.
func (h *HTTPHandler) Shared(w http.ResponseWriter, r *http.Request) {
	red, err := h.redeem(r, r.PathValue("shortId"))
	if err != nil {
		view, ok := refusalPages[domain.Reason(err)]
		if !ok {
			view = sharedView{Title: "Something went wrong", Message: "Please try again later."}
		}
		h.renderShared(w, statusFor(err), view)
		return
	}

	host := red.Link.TargetURL
	if u, err := url.Parse(red.Link.TargetURL); err == nil {
		host = u.Hostname()
	}
	h.renderShared(w, http.StatusOK, sharedView{
		Title:        "Redirecting",
		Message:      "Applying the shared identity before continuing.",
		Identity:     &red.Identity,
		TargetURL:    red.Link.TargetURL,
		TargetHost:   host,
		DelaySeconds: int(h.redirectDelay.Seconds()),
	})
}

func (h *HTTPHandler) renderShared(w http.ResponseWriter, status int, view sharedView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := sharedPage.Execute(w, view); err != nil {
		h.log.Error("error rendering shared page", "error", err)
	}
}
