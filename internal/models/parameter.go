package models

import "fmt"

// Parameter is a predicted ocean property.
type Parameter string

const (
	Temperature Parameter = "temperature"
	Salinity    Parameter = "salinity"
)

// TargetParameters lists the parameters a region bundle is expected to carry.
var TargetParameters = []Parameter{Temperature, Salinity}

// ParseParameter converts a string into a known Parameter.
func ParseParameter(s string) (Parameter, error) {
	switch Parameter(s) {
	case Temperature, Salinity:
		return Parameter(s), nil
	default:
		return "", fmt.Errorf("unknown parameter: %s", s)
	}
}

// Unit returns the display unit of the parameter.
func (p Parameter) Unit() string {
	switch p {
	case Temperature:
		return "°C"
	case Salinity:
		return "PSU"
	default:
		return ""
	}
}
