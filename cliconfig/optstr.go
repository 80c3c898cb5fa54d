package cliconfig

import "strconv"

// OptionalString is a flag value with three possible states: absent or
// explicitly falsy ("", "--foo=false", "--foo=0"), present with no value or a
// truthy one ("--foo", "--foo=true"), or present with a free-form value
// ("--foo=bar"). A single flag can act as an on/off switch that also carries
// a value.
type OptionalString struct {
	Trueish bool // false only when the flag parsed to a false bool
	Value   string
}

// IsBoolFlag marks the flag as one that may be passed without a value. See
// https://pkg.go.dev/flag#Value.
func (o *OptionalString) IsBoolFlag() bool { return true }

// Set records the value and derives truthiness with strconv.ParseBool. Any
// value that is not a parseable bool counts as truthy.
func (o *OptionalString) Set(v string) error {
	b, err := strconv.ParseBool(v)
	o.Trueish = b || err != nil
	o.Value = v
	return nil
}

func (o *OptionalString) String() string { return o.Value }
