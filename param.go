package qnet

// param.go applies experiment parameters to a NetworkDesc before the network is
// built.  An ExpParameter names the kind of component it applies to, an
// attribute that selects which components of that kind receive it, the
// parameter, and a string-encoded value.  Attributes are
//   - "*", every component of the kind
//   - "name%%s1", the component named s1
//   - "group%%edge", every component listing edge among its groups
//
// and may be joined with commas, in which case all of them must match.

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ExpParamObjs, ExpAttributes, and ExpParams describe the kinds of components an
// experiment file configures, the attribute names used to select them, and the
// parameters each kind accepts
var ExpParamObjs = []string{"Generator", "Port", "Monitor", "Sink"}

var ExpAttributes = map[string][]string{
	"Generator": {"name", "group", "class", "*"},
	"Port":      {"name", "group", "*"},
	"Monitor":   {"name", "group", "port", "*"},
	"Sink":      {"name", "group", "*"},
}

var ExpParams = map[string][]string{
	"Generator": {"arrivalmean", "sizemean", "initialdelay", "lifetime"},
	"Port":      {"rates", "weights", "bufferlimit", "limitbytes"},
	"Monitor":   {"interval", "cost"},
	"Sink":      {"recordarrivals", "absolutetime", "recordwaits", "debug"},
}

// ExpParameter struct describes an input to experiment configuration at run-time.
type ExpParameter struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// parameter being set, e.g., "bufferlimit", "weights"
	Param string `json:"param" yaml:"param"`

	// string-encoded value associated with type
	Value string `json:"value" yaml:"value"`
}

// An ExpCfg structure holds all of the ExpParameters for a named experiment
type ExpCfg struct {
	Name       string         `json:"expname" yaml:"expname"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor. Saves the offered Name and initializes the slice of ExpParameters.
func CreateExpCfg(name string) *ExpCfg {
	return &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}
}

// ValidateParameter returns an error if the paramObj, attribute, and param values don't
// make sense taken together within an ExpParameter.
func ValidateParameter(paramObj, attribute, param string) error {
	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized", paramObj)
	}

	attrbList := strings.Split(attribute, ",")
	for _, attrb := range attrbList {
		if attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("parameter attribute * for paramObj %s is included with more attributes", paramObj)
			}
			continue
		}
		attrbName, _, found := strings.Cut(attrb, "%%")
		if !found {
			return fmt.Errorf("parameter attribute %q for paramObj %s is not of the form name%%%%value", attrb, paramObj)
		}
		if !slices.Contains(ExpAttributes[paramObj], attrbName) {
			return fmt.Errorf("parameter attribute %s is not recognized for paramObj %s", attrbName, paramObj)
		}
	}

	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param, paramObj)
	}
	return nil
}

// AddParameter accepts the four values in an ExpParameter, creates one, and adds to the ExpCfg's list.
// Returns an error if the parameters are not validated.
func (expcfg *ExpCfg) AddParameter(paramObj, attribute, param, value string) error {
	if err := ValidateParameter(paramObj, attribute, param); err != nil {
		return err
	}
	expcfg.Parameters = append(expcfg.Parameters,
		ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value})
	return nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (expcfg *ExpCfg) WriteToFile(filename string) error {
	return writeSerialized(filename, *expcfg)
}

// ReadExpCfg deserializes a byte slice holding a representation of an ExpCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// A valueStruct type holds the different types a value might have,
// typically only one of these is used, and which one is known by context
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
	isNumber    bool
}

// stringToValueStruct takes a string and determines whether it is an integer,
// floating point, boolean, or a string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{stringValue: v}

	if ivalue, ierr := strconv.Atoi(v); ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		vs.isNumber = true
		return vs
	}
	if fvalue, ferr := strconv.ParseFloat(v, 64); ferr == nil {
		vs.floatValue = fvalue
		vs.isNumber = true
		return vs
	}
	if v == "true" || v == "True" {
		vs.boolValue = true
	}
	return vs
}

// number returns the numeric value, or an error naming the parameter
func (vs valueStruct) number(param string) (float64, error) {
	if !vs.isNumber {
		return 0.0, fmt.Errorf("parameter %s needs a number, got %q", param, vs.stringValue)
	}
	return vs.floatValue, nil
}

// ParseFloatList reads a comma-separated list of numbers such as "0.6,0.4"
func ParseFloatList(v string) ([]float64, error) {
	fields := strings.Split(v, ",")
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a comma-separated list of numbers", v)
		}
		values = append(values, value)
	}
	return values, nil
}

// paramObj is satisfied by the descriptions an ExpParameter can be applied to
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, value valueStruct) error
}

func (gd *GeneratorDesc) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return gd.Name == attrbValue
	case "group":
		return slices.Contains(gd.Groups, attrbValue)
	case "class":
		return strconv.Itoa(gd.Class) == attrbValue
	}
	return false
}

func (gd *GeneratorDesc) setParam(param string, value valueStruct) error {
	number, err := value.number(param)
	if err != nil {
		return err
	}
	switch param {
	case "arrivalmean":
		gd.Arrival = withMean(gd.Arrival, number)
	case "sizemean":
		gd.Size = withMean(gd.Size, number)
	case "initialdelay":
		gd.InitialDelay = number
	case "lifetime":
		gd.Lifetime = number
	default:
		return fmt.Errorf("generator parameter %s not recognized", param)
	}
	return nil
}

// withMean rescales a distribution to the given mean, keeping its family
func withMean(dd DistDesc, mean float64) DistDesc {
	switch strings.ToLower(dd.Dist) {
	case "const", "constant":
		return DistDesc{Dist: dd.Dist, Value: mean}
	case "uniform":
		half := (dd.Max - dd.Min) / 2.0
		return DistDesc{Dist: dd.Dist, Min: mean - half, Max: mean + half}
	case "weibull":
		return DistDesc{Dist: dd.Dist, Shape: dd.Shape, Mean: mean}
	}
	return DistDesc{Dist: dd.Dist, Mean: mean}
}

func (pd *PortDesc) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return pd.Name == attrbValue
	case "group":
		return slices.Contains(pd.Groups, attrbValue)
	}
	return false
}

func (pd *PortDesc) setParam(param string, value valueStruct) error {
	switch param {
	case "rates", "weights":
		values, err := ParseFloatList(value.stringValue)
		if err != nil {
			return err
		}
		if param == "rates" {
			pd.Rates = values
		} else {
			pd.Weights = values
		}
	case "bufferlimit":
		number, err := value.number(param)
		if err != nil {
			return err
		}
		pd.BufferLimit = number
	case "limitbytes":
		pd.LimitBytes = value.boolValue
	default:
		return fmt.Errorf("port parameter %s not recognized", param)
	}
	return nil
}

func (md *MonitorDesc) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return md.Name == attrbValue
	case "group":
		return slices.Contains(md.Groups, attrbValue)
	case "port":
		return md.Port == attrbValue
	}
	return false
}

func (md *MonitorDesc) setParam(param string, value valueStruct) error {
	switch param {
	case "interval":
		number, err := value.number(param)
		if err != nil {
			return err
		}
		md.Interval = withMean(md.Interval, number)
	case "cost":
		md.Cost = value.boolValue
	default:
		return fmt.Errorf("monitor parameter %s not recognized", param)
	}
	return nil
}

func (sd *SinkDesc) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return sd.Name == attrbValue
	case "group":
		return slices.Contains(sd.Groups, attrbValue)
	}
	return false
}

func (sd *SinkDesc) setParam(param string, value valueStruct) error {
	switch param {
	case "recordarrivals":
		sd.RecordArrivals = value.boolValue
	case "absolutetime":
		sd.AbsoluteTime = value.boolValue
	case "recordwaits":
		recordWaits := value.boolValue
		sd.RecordWaits = &recordWaits
	case "debug":
		sd.Debug = value.boolValue
	default:
		return fmt.Errorf("sink parameter %s not recognized", param)
	}
	return nil
}

// specificity ranks a parameter's attribute: wildcards apply first, names last
func specificity(attribute string) int {
	switch {
	case attribute == "*":
		return 0
	case strings.Contains(attribute, "name%%"):
		return 2
	}
	return 1
}

// ApplyExpCfg applies the parameters of expCfg to a copy of nd and returns the
// copy.  Parameters are applied from the most general to the most specific
// attribute, so that a named component keeps what was set for it by name.
func ApplyExpCfg(nd *NetworkDesc, expCfg *ExpCfg) (*NetworkDesc, error) {
	applied := nd.Clone()
	if expCfg == nil {
		return applied, nil
	}

	ordered := slices.Clone(expCfg.Parameters)
	slices.SortStableFunc(ordered, func(a, b ExpParameter) int {
		return specificity(a.Attribute) - specificity(b.Attribute)
	})

	errs := make([]error, 0)
	for _, param := range ordered {
		if err := ValidateParameter(param.ParamObj, param.Attribute, param.Param); err != nil {
			errs = append(errs, err)
			continue
		}

		var testList []paramObj
		switch param.ParamObj {
		case "Generator":
			for idx := range applied.Generators {
				testList = append(testList, &applied.Generators[idx])
			}
		case "Port":
			for idx := range applied.Ports {
				testList = append(testList, &applied.Ports[idx])
			}
		case "Monitor":
			for idx := range applied.Monitors {
				testList = append(testList, &applied.Monitors[idx])
			}
		case "Sink":
			for idx := range applied.Sinks {
				testList = append(testList, &applied.Sinks[idx])
			}
		}

		vs := stringToValueStruct(param.Value)
		for _, testObj := range testList {
			matched := true
			for _, attrb := range strings.Split(param.Attribute, ",") {
				if attrb == "*" {
					break
				}
				attrbName, attrbValue, _ := strings.Cut(attrb, "%%")
				if !testObj.matchParam(attrbName, attrbValue) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			if err := testObj.setParam(param.Param, vs); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return applied, nil
}
