package council

// Label ties an anonymized letter to the model behind it
type Label struct {
	Letter string `json:"letter"`
	Model  string `json:"model"`
}

// Name is how the label appears in prompts and rankings, e.g. "Response A"
func (l Label) Name() string {
	return "Response " + l.Letter
}

// Labels is the anonymization map of one session, in assignment order
type Labels []Label

// AssignLabels gives each response a letter in slice order: A, B, ... Z, AA, AB, ...
// The result depends only on the order of responses, so re-deriving it from
// the same success set yields the same labels.
func AssignLabels(responses []ModelResponse) Labels {
	labels := make(Labels, len(responses))
	for i, r := range responses {
		labels[i] = Label{Letter: Letter(i), Model: r.Model}
	}
	return labels
}

// LabelToModel returns "Response X" -> model id
func (ls Labels) LabelToModel() map[string]string {
	m := make(map[string]string, len(ls))
	for _, l := range ls {
		m[l.Name()] = l.Model
	}
	return m
}

// Letter returns the spreadsheet-style letter for a zero-based index
func Letter(i int) string {
	var buf []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('A' + (n-1)%26)}, buf...)
	}
	return string(buf)
}
