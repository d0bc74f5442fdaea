package setup

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LoadEnv загружает переменные из .env файлов (по умолчанию ".env").
// Отсутствующие файлы пропускаются, уже заданные переменные не переопределяются.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Addr возвращает ":PORT" из переменной env или значение по умолчанию.
func Addr(env, defaultPort string) string {
	if v := os.Getenv(env); v != "" {
		return ":" + v
	}
	return ":" + defaultPort
}

// OpsMux создаёт mux с /healthz и /metrics.
func OpsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
