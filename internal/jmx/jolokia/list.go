package jolokia

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/joeycumines/jmxsh/internal/jmx"
)

type listAttr struct {
	Type string `json:"type"`
	Desc string `json:"desc"`
	RW   *bool  `json:"rw"`
}

type listArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Desc string `json:"desc"`
}

type listOp struct {
	Args []listArg `json:"args"`
	Ret  string    `json:"ret"`
	Desc string    `json:"desc"`
}

type listMBean struct {
	Class string                     `json:"class"`
	Desc  string                     `json:"desc"`
	Attr  map[string]listAttr        `json:"attr"`
	Op    map[string]json.RawMessage `json:"op"`
}

// parseMBeanInfo decodes the value of a list request for a single mbean.
// Overloaded operations arrive as an array.
func parseMBeanInfo(raw json.RawMessage) (*jmx.MBeanInfo, error) {
	var lm listMBean
	if err := json.Unmarshal(raw, &lm); err != nil {
		return nil, err
	}
	info := &jmx.MBeanInfo{ClassName: lm.Class, Description: lm.Desc}

	for name, a := range lm.Attr {
		writable := a.RW == nil || *a.RW
		info.Attributes = append(info.Attributes, jmx.AttributeInfo{
			Name:        name,
			Type:        a.Type,
			Description: a.Desc,
			Readable:    true,
			Writable:    writable,
			IsGetter:    a.Type == "boolean",
		})
	}
	slices.SortFunc(info.Attributes, func(a, b jmx.AttributeInfo) int { return cmp.Compare(a.Name, b.Name) })

	for name, rawOp := range lm.Op {
		var ops []listOp
		trimmed := strings.TrimSpace(string(rawOp))
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(rawOp, &ops); err != nil {
				return nil, fmt.Errorf("operation %s: %w", name, err)
			}
		} else {
			var op listOp
			if err := json.Unmarshal(rawOp, &op); err != nil {
				return nil, fmt.Errorf("operation %s: %w", name, err)
			}
			ops = []listOp{op}
		}
		for _, op := range ops {
			oi := jmx.OperationInfo{Name: name, ReturnType: op.Ret, Description: op.Desc}
			for _, a := range op.Args {
				oi.Params = append(oi.Params, jmx.ParameterInfo{Name: a.Name, Type: a.Type, Description: a.Desc})
			}
			info.Operations = append(info.Operations, oi)
		}
	}
	slices.SortFunc(info.Operations, func(a, b jmx.OperationInfo) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(len(a.Params), len(b.Params)),
			cmp.Compare(strings.Join(a.Signature(), ","), strings.Join(b.Signature(), ",")),
		)
	})
	return info, nil
}
