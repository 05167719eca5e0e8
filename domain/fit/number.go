package fit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Number is a float64 that survives JSON when it is NaN or infinite, as
// R-hat and ESS are for degenerate chains. Non-finite values are written as
// the strings "NaN", "+Inf" and "-Inf".
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Numbers is a vector of draws encoded element-wise as Number, so a draw or
// pointwise log-likelihood of -Inf does not break a snapshot.
type Numbers []float64

func (v Numbers) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	out := make([]Number, len(v))
	for i, f := range v {
		out[i] = Number(f)
	}
	return json.Marshal(out)
}

func (v *Numbers) UnmarshalJSON(data []byte) error {
	var in []Number
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in == nil {
		*v = nil
		return nil
	}
	out := make(Numbers, len(in))
	for i, n := range in {
		out[i] = float64(n)
	}
	*v = out
	return nil
}

type summaryJSON struct {
	Parameter string `json:"parameter"`
	Mean      Number `json:"mean"`
	SD        Number `json:"sd"`
	Lower     Number `json:"lower"`
	Upper     Number `json:"upper"`
	Prob      Number `json:"prob"`
	Rhat      Number `json:"rhat"`
	BulkESS   Number `json:"bulk_ess"`
	TailESS   Number `json:"tail_ess"`
}

func (s ParameterSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Parameter: s.Parameter, Mean: Number(s.Mean), SD: Number(s.SD),
		Lower: Number(s.Lower), Upper: Number(s.Upper), Prob: Number(s.Prob),
		Rhat: Number(s.Rhat), BulkESS: Number(s.BulkESS), TailESS: Number(s.TailESS),
	})
}

func (s *ParameterSummary) UnmarshalJSON(data []byte) error {
	var j summaryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*s = ParameterSummary{
		Parameter: j.Parameter, Mean: float64(j.Mean), SD: float64(j.SD),
		Lower: float64(j.Lower), Upper: float64(j.Upper), Prob: float64(j.Prob),
		Rhat: float64(j.Rhat), BulkESS: float64(j.BulkESS), TailESS: float64(j.TailESS),
	}
	return nil
}

type warningJSON struct {
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
	Parameter string      `json:"parameter,omitempty"`
	Value     Number      `json:"value"`
}

func (w Warning) MarshalJSON() ([]byte, error) {
	return json.Marshal(warningJSON{Kind: w.Kind, Message: w.Message, Parameter: w.Parameter, Value: Number(w.Value)})
}

func (w *Warning) UnmarshalJSON(data []byte) error {
	var j warningJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*w = Warning{Kind: j.Kind, Message: j.Message, Parameter: j.Parameter, Value: float64(j.Value)}
	return nil
}
