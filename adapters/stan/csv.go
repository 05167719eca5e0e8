package stan

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gobayes/domain/model"
	"gobayes/ports"
)

// columnNames maps Stan CSV headers onto layout parameter names
func columnNames(layout *model.Layout) map[string]string {
	d := layout.Design()
	family := layout.Family()
	names := make(map[string]string)

	if d.Intercept {
		names["Intercept"] = "b_Intercept"
	}
	if family.IsOrdinal() {
		if d.Equidistant {
			names["first_Intercept"] = model.ThresholdName(1)
			names["delta"] = "delta"
		} else {
			for k := 1; k <= d.Thresholds; k++ {
				names[fmt.Sprintf("Intercept.%d", k)] = model.ThresholdName(k)
			}
		}
	}
	for i, coef := range d.Coefs {
		names[fmt.Sprintf("b.%d", i+1)] = "b_" + coef
	}
	for i, coef := range d.CSCoefs {
		for k := 1; k <= d.Thresholds; k++ {
			names[fmt.Sprintf("bcs.%d.%d", i+1, k)] = model.CSName(coef, k)
		}
	}
	for _, class := range family.AuxClasses() {
		names[string(class)] = string(class)
	}
	for j, g := range d.Groups {
		id := j + 1
		for m, coef := range g.Coefs {
			names[fmt.Sprintf("sd_%d.%d", id, m+1)] = model.SDName(g.Group, coef)
			for l, level := range g.Levels {
				names[fmt.Sprintf("r_%d.%d.%d", id, l+1, m+1)] = model.RName(g.Group, level, coef)
			}
		}
		if g.Correlated {
			for a := 0; a < len(g.Coefs); a++ {
				for b := a + 1; b < len(g.Coefs); b++ {
					names[fmt.Sprintf("Cor_%d.%d.%d", id, a+1, b+1)] = model.CorName(g.Group, g.Coefs[a], g.Coefs[b])
				}
			}
		}
	}
	return names
}

// ParseCSV reads one chain of CmdStan output. Comment lines start with '#';
// sampler diagnostics end in "__". maxTreedepth counts saturated
// transitions.
func ParseCSV(r io.Reader, layout *model.Layout, chain, maxTreedepth int) (*ports.ChainDraws, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read Stan CSV header: %w", err)
	}

	names := columnNames(layout)
	out := &ports.ChainDraws{Chain: chain, Columns: make(map[string][]float64)}
	target := make([]string, len(header))
	divergent, treedepth, stepsize := -1, -1, -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch h {
		case "divergent__":
			divergent = i
		case "treedepth__":
			treedepth = i
		case "stepsize__":
			stepsize = i
		}
		if name, ok := names[h]; ok {
			target[i] = name
		}
	}

	for _, name := range names {
		found := false
		for _, t := range target {
			if t == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("Stan CSV of chain %d has no column for %s", chain, name)
		}
	}

	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Stan CSV row %d: %w", row+1, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("Stan CSV row %d has %d fields, header has %d", row+1, len(record), len(header))
		}
		row++
		for i, field := range record {
			if target[i] == "" && i != divergent && i != treedepth && i != stepsize {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("Stan CSV row %d column %s: %w", row, header[i], err)
			}
			switch i {
			case divergent:
				if v > 0 {
					out.Divergent++
				}
			case treedepth:
				if maxTreedepth > 0 && int(v) >= maxTreedepth {
					out.TreedepthHits++
				}
			case stepsize:
				if row == 1 {
					out.StepSize = v
				}
			}
			if target[i] != "" {
				out.Columns[target[i]] = append(out.Columns[target[i]], v)
			}
		}
	}
	if row == 0 {
		return nil, fmt.Errorf("Stan CSV of chain %d has no draws", chain)
	}
	return out, nil
}
