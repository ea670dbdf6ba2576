package banner

import (
	"fmt"

	"ingestd/pkg/config"
)

const banner = `
██╗███╗   ██╗ ██████╗ ███████╗███████╗████████╗██████╗
██║████╗  ██║██╔════╝ ██╔════╝██╔════╝╚══██╔══╝██╔══██╗
██║██╔██╗ ██║██║  ███╗█████╗  ███████╗   ██║   ██║  ██║
██║██║╚██╗██║██║   ██║██╔══╝  ╚════██║   ██║   ██║  ██║
██║██║ ╚████║╚██████╔╝███████╗███████║   ██║   ██████╔╝
╚═╝╚═╝  ╚═══╝ ╚═════╝ ╚══════╝╚══════╝   ╚═╝   ╚═════╝
`

// Print writes the startup banner with the effective config and build info.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s (%s)\n", cfg.Addr(), engineName(cfg))
	fmt.Printf("Data dir:  %s\n", cfg.Server.DataDir)
	fmt.Printf("Job:       %s (hard limit %s, buffer %s, retry %s)\n",
		cfg.Job.Name, cfg.Job.HardLimit.Duration(), cfg.Job.SafetyBuffer.Duration(), cfg.Job.RetryInterval.Duration())
	fmt.Printf("Source:    %s\n", cfg.Source.Dir)
	fmt.Printf("Extract:   %s\n", orDev(cfg.Extract.URL, "built-in sidecar"))
	fmt.Printf("Warehouse: %s\n", orDev(cfg.Warehouse.URL, "logging sink"))
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET    /v1/jobs                          - all jobs")
	fmt.Println("GET    /v1/jobs/{job}                    - job status")
	fmt.Println("POST   /v1/jobs/{job}/run                - run now (?wait=1 to block)")
	fmt.Println("POST   /v1/jobs/{job}/start-fresh        - clear ledger and re-run")
	fmt.Println("GET    /v1/jobs/{job}/continuations      - pending continuations")
	fmt.Println("DELETE /v1/jobs/{job}/continuations      - cancel continuations")
	fmt.Println("GET    /v1/jobs/{job}/ledger/summary     - ledger outcome counts")
	fmt.Println("POST   /v1/retention/sweep               - sweep old ledger entries now")
	fmt.Println("GET    /metrics, /healthz, /readyz, /docs/")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl http://localhost:%d/v1/jobs/%s\n", port(cfg), cfg.Job.Name)
	fmt.Printf("curl -X POST 'http://localhost:%d/v1/jobs/%s/start-fresh?wait=1'\n", port(cfg), cfg.Job.Name)

	if cfg.Server.APIToken == "" {
		fmt.Println("\nNo api_token configured: the operator surface is open. Set one for production.")
	}
}

func engineName(cfg *config.Config) string {
	if cfg.Server.Engine == "fasthttp" {
		return "fasthttp"
	}
	return "nethttp"
}

func orDev(url, fallback string) string {
	if url == "" {
		return fallback + " (dev)"
	}
	return url
}

func port(cfg *config.Config) int {
	if cfg.Server.Port == 0 {
		return 8080
	}
	return cfg.Server.Port
}
