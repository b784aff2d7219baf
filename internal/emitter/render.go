package emitter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"illusiongen/internal/schedule"
	"illusiongen/internal/trace"
)

const illusionTemplate = `topology = {{.Family}};
k = {{.K}};
n = {{.Dim}};
// Routing
routing_function = {{.Routing}};
// Flow control
num_vcs = {{.NumVCs}};
// Traffic
traffic = {{.Traffic}};
traffic_schedule = {{"{"}}{{.Schedule}}{{"}"}};
latency_thres = {{float .LatencyThreshold}};
//sample_period = 10000; 

sim_power={{.SimPower}};
tech_file = {{.TechFile}};
power_output_file = power_{{.Name}}.txt;

`

var configTemplate = template.Must(template.New("illusion").Funcs(template.FuncMap{
	"float": formatFloat,
}).Parse(illusionTemplate))

// Params is everything substituted into one config.
type Params struct {
	Name             string
	Family           string
	K                int
	Dim              int
	Routing          string
	NumVCs           int
	Traffic          string
	Schedule         string
	LatencyThreshold float64
	SimPower         int
	TechFile         string
}

// Render writes the BookSim config for p to w.
func Render(w io.Writer, p Params) error {
	if err := configTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("render %s: %w", p.Name, err)
	}
	return nil
}

// FormatSchedule serializes links as {{src,dst,size},{src,dst,size},...}
// with no whitespace.
func FormatSchedule(links []schedule.Link) string {
	var b strings.Builder
	b.Grow(len(links)*12 + 2)
	b.WriteByte('{')
	for i, l := range links {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		b.WriteString(strconv.Itoa(l.Src))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(l.Dst))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(l.Size, 10))
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.String()
}

// ArtifactName is <network>_<word>_<batch>_<config>_<family>_<k>_<n>.
func ArtifactName(s trace.Scenario, v Variant) string {
	return fmt.Sprintf("%s_%s_%s_%d_%d", s.Name(), s.ConfigLabel(), v.Family, v.K, v.Dim)
}

// formatFloat keeps a decimal point on whole numbers (10000 -> 10000.0).
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
