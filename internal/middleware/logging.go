package middleware

import (
	"net/http"

	"github.com/heracles-fit/heracles/pkg"

	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqIp, _ := pkg.ReadUserIP(r)
			log.Tracef(" ====> request [%s] path: [%s] [ip: %s]", r.Method, r.URL.Path, reqIp)
			next.ServeHTTP(w, r)
		})
	}
}
