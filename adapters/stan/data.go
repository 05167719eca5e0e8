package stan

import (
	"encoding/json"
	"fmt"

	"gobayes/domain/model"

	"gonum.org/v1/gonum/mat"
)

// Data builds the CmdStan JSON data file of a layout. Names match the data
// block emitted by Program.
func Data(layout *model.Layout) ([]byte, error) {
	d := layout.Design()
	family := layout.Family()
	data := map[string]interface{}{"N": d.N}

	if family.IsDiscrete() {
		data["Y"] = toInts(d.Y)
	} else {
		data["Y"] = d.Y
	}
	if d.Trials != nil {
		data["trials"] = toInts(d.Trials)
	}
	if d.SE != nil {
		data["se"] = d.SE
	}
	if d.Weights != nil {
		data["weights"] = d.Weights
	}
	if d.Rate != nil {
		data["rate"] = d.Rate
	}
	if d.Cens != nil {
		data["cens"] = d.Cens
	}
	if family.IsOrdinal() {
		data["nthres"] = d.Thresholds
	}
	if len(d.Coefs) > 0 {
		data["K"] = len(d.Coefs)
		data["X"] = rows(d.X)
	}
	if len(d.CSCoefs) > 0 {
		data["Kcs"] = len(d.CSCoefs)
		data["Xcs"] = rows(d.XCS)
	}
	for j, g := range d.Groups {
		id := j + 1
		index := make([]int, len(g.Index))
		for i, l := range g.Index {
			index[i] = l + 1
		}
		data[fmt.Sprintf("N_%d", id)] = len(g.Levels)
		data[fmt.Sprintf("M_%d", id)] = len(g.Coefs)
		data[fmt.Sprintf("J_%d", id)] = index
		data[fmt.Sprintf("Z_%d", id)] = rows(g.Z)
	}
	return json.Marshal(data)
}

func toInts(values []float64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
