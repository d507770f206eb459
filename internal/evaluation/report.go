package evaluation

import (
	"fmt"
	"io"
	"strings"

	"github.com/fitbench/fitbench/internal/results"
)

var reportSections = []struct {
	title   string
	metrics []string
}{
	{"Fidelity", []string{results.MetricClipScore, results.MetricGrdClipScore, results.MetricClipImageScore, results.MetricLPIPS}},
	{"Personalization", []string{results.MetricPersonalSim}},
	{"Compatibility", []string{results.MetricCompatibility, results.MetricGrdCompatibility}},
	{"Retrieval Accuracy", []string{results.MetricAccuracy}},
}

// WriteReport prints the metrics of one checkpoint grouped by section.
// Metrics missing from values are left out.
func WriteReport(w io.Writer, version string, ckpt int, values map[string]float64) error {
	var b strings.Builder
	bar := strings.Repeat("-", 10)
	fmt.Fprintf(&b, "%s%s-checkpoint-%d-Grounding%s\n\n", bar, version, ckpt, bar)

	for _, section := range reportSections {
		fmt.Fprintf(&b, "%s\n", section.title)
		for _, name := range section.metrics {
			v, ok := values[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  [%s]: %.2f\n", name, v)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
