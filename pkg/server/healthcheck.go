package server

import (
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
)

var healthcheckClient = &http.Client{Timeout: 10 * time.Second}

// startHealthcheck begins the periodic outbound liveness ping. Failures are
// logged and otherwise ignored; the ping never touches subscription or
// broadcast state.
func (s *Server) startHealthcheck() {
	hc := s.config.Healthcheck
	if !hc.Enabled || hc.URL == "" {
		return
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(hc.Schedule, func() {
		pingHealthcheck(hc.URL)
	}); err != nil {
		log.Printf("Invalid healthcheck schedule %q: %v", hc.Schedule, err)
		return
	}
	s.cron.Start()

	// Ping once at startup as well, so a freshly deployed instance
	// announces itself before the first scheduled tick.
	go pingHealthcheck(hc.URL)
}

func pingHealthcheck(url string) {
	resp, err := healthcheckClient.Get(url)
	if err != nil {
		log.Printf("[healthcheck] ping failed: %v", err)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[healthcheck] failed to close response body: %v", err)
		}
	}()

	log.Printf("[healthcheck] pinged %s (%d)", url, resp.StatusCode)
}
