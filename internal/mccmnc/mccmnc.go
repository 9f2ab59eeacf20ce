package mccmnc

import (
	"encoding/json"
	"os"
	"strings"
)

// NetworkOperator represents an entry in mcc_mnc.json
type NetworkOperator struct {
	MCC         string `json:"mcc"`
	MNC         string `json:"mnc"`
	ISO         string `json:"iso"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Name        string `json:"name"`
}

// Directory maps MCC+MNC codes to operators. The zero value is empty and
// resolves nothing.
type Directory struct {
	byCode map[string]NetworkOperator
}

// Load reads an mcc_mnc.json file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Directory, error) {
	var list []NetworkOperator
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	d := &Directory{byCode: make(map[string]NetworkOperator, len(list))}
	for _, op := range list {
		d.byCode[op.MCC+op.MNC] = op
	}
	return d, nil
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byCode)
}

// Lookup finds the operator for a numeric code such as "22610".
func (d *Directory) Lookup(code string) (NetworkOperator, bool) {
	if d == nil {
		return NetworkOperator{}, false
	}
	op, ok := d.byCode[code]
	return op, ok
}

// Registration is what AT+COPS? reports about the current network.
type Registration struct {
	Mode     string `json:"mode"`
	Operator string `json:"operator"`       // as reported
	Code     string `json:"code,omitempty"` // numeric MCC+MNC, when reported
	Name     string `json:"name,omitempty"`
	Country  string `json:"country,omitempty"`
}

// ParseCOPS reads a response like
//
//	+COPS: 0,2,"22610",7
//	+COPS: 0,0,"Orange RO",7
//
// A bare "+COPS: 0" means the modem is not registered and yields false.
func ParseCOPS(resp string) (Registration, bool) {
	for line := range strings.SplitSeq(resp, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "+COPS:")
		if !ok {
			continue
		}
		fields := strings.Split(strings.TrimSpace(rest), ",")
		if len(fields) < 3 {
			return Registration{}, false
		}
		reg := Registration{
			Mode:     fields[0],
			Operator: strings.Trim(fields[2], `"`),
		}
		if fields[1] == "2" {
			reg.Code = reg.Operator
		}
		return reg, reg.Operator != ""
	}
	return Registration{}, false
}

// Resolve fills in the operator name and country from the directory when
// the registration is numeric.
func (d *Directory) Resolve(reg Registration) Registration {
	if reg.Code == "" {
		reg.Name = reg.Operator
		return reg
	}
	if op, ok := d.Lookup(reg.Code); ok {
		reg.Name = op.Name
		reg.Country = op.Country
	}
	return reg
}
