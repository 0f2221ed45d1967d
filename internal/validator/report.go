package validator

// Layer names, in execution order.
const (
	LayerWellFormed = "well-formedness"
	LayerSchema     = "schema"
	LayerSecurity   = "security"
	LayerStructure  = "structure"
)

// LayerResult is the outcome of one validation layer. Errors are blocking;
// warnings never affect Passed.
type LayerResult struct {
	Layer    string   `json:"layer" yaml:"layer"`
	Passed   bool     `json:"passed" yaml:"passed"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newLayer(name string) LayerResult {
	return LayerResult{Layer: name, Passed: true}
}

func (l *LayerResult) fail(msg string) {
	l.Passed = false
	l.Errors = append(l.Errors, msg)
}

func (l *LayerResult) warn(msg string) {
	l.Warnings = append(l.Warnings, msg)
}

// Report is the full diagnostic picture for one fragment.
type Report struct {
	Layers []LayerResult `json:"layers" yaml:"layers"`
	Valid  bool          `json:"valid" yaml:"valid"`
}

// Reduce aggregates layer results. The report is valid only when every layer
// passed.
func Reduce(layers ...LayerResult) Report {
	valid := len(layers) > 0
	for _, l := range layers {
		valid = valid && l.Passed
	}
	return Report{Layers: layers, Valid: valid}
}

// Layer returns the named layer result.
func (r Report) Layer(name string) (LayerResult, bool) {
	for _, l := range r.Layers {
		if l.Layer == name {
			return l, true
		}
	}
	return LayerResult{}, false
}

// Errors lists every blocking message prefixed with its layer name.
func (r Report) Errors() []string {
	var out []string
	for _, l := range r.Layers {
		for _, e := range l.Errors {
			out = append(out, l.Layer+": "+e)
		}
	}
	return out
}

// Warnings lists every warning prefixed with its layer name.
func (r Report) Warnings() []string {
	var out []string
	for _, l := range r.Layers {
		for _, w := range l.Warnings {
			out = append(out, l.Layer+": "+w)
		}
	}
	return out
}

// FailedLayers names the layers that did not pass.
func (r Report) FailedLayers() []string {
	var out []string
	for _, l := range r.Layers {
		if !l.Passed {
			out = append(out, l.Layer)
		}
	}
	return out
}
