package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/uamguard/uamguard/internal/health"
)

func newStatusCmd() *cobra.Command {
	var addr string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(addr, asJSON)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "base URL of the daemon's HTTP server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status JSON")
	return cmd
}

func runStatus(addr string, asJSON bool) error {
	client := &http.Client{Timeout: 5 * time.Second}

	st, raw, err := fetchStatus(client, addr)
	if err != nil {
		return err
	}
	if asJSON {
		fmt.Println(string(raw))
		return nil
	}

	fmt.Printf("mode:            %s", st.Mode)
	if st.Mode == "active" && st.ProtectedFor != "" {
		fmt.Printf("  (for %s)", st.ProtectedFor)
	}
	fmt.Println()
	fmt.Printf("normalized load: %.2f  (raw %.2f on %d CPUs)\n", st.NormalizedLoad, st.RawLoad, st.CPUCount)
	if st.Baseline != nil {
		fmt.Printf("baseline:        %.2f\n", *st.Baseline)
	} else {
		fmt.Printf("baseline:        collecting\n")
	}
	fmt.Printf("thresholds:      upper %.2f / lower %.2f", st.UpperBound, st.LowerBound)
	if st.RelativeBounds {
		fmt.Printf("  (relative to baseline)")
	}
	fmt.Println()
	fmt.Printf("last check:      %s\n", st.Timestamp)
	if st.LastError != "" {
		fmt.Printf("last error:      %s\n", st.LastError)
	}

	// Counters come from the metrics page; tolerate it being unreachable.
	if mfs, err := fetchMetrics(client, addr+"/metrics"); err == nil {
		fmt.Printf("ticks:           %.0f  (sampling failures %.0f, persistence failures %.0f)\n",
			metricValue(mfs, "uamguard_ticks_total"),
			metricValue(mfs, "uamguard_sampling_failures_total"),
			metricValue(mfs, "uamguard_persistence_failures_total"),
		)
	}
	return nil
}

func fetchStatus(client *http.Client, addr string) (*health.StatusResponse, []byte, error) {
	resp, err := client.Get(addr + "/api/v1/status")
	if err != nil {
		return nil, nil, fmt.Errorf("daemon unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("daemon returned HTTP %d: %s", resp.StatusCode, raw)
	}

	var st health.StatusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, nil, fmt.Errorf("parse status response: %w", err)
	}
	return &st, raw, nil
}

func fetchMetrics(client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	return mfs, nil
}

// metricValue sums all samples of the named family. Counters and gauges only.
func metricValue(mfs map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := mfs[name]
	if !ok {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		}
	}
	return total
}
