package edgar

import (
	"errors"
	"fmt"
)

// ErrUnknownFormType reports a form type outside the recognized set.
var ErrUnknownFormType = errors.New("edgar: unknown form type")

// FormType is a recognized category of SEC filing. Each value has a stable
// numeric code and a canonical string code used by the archive; unknown
// codes are rejected rather than coerced.
type FormType int

const (
	AnnualReport FormType = iota + 1 // 10-K
	QuarterlyReport
	CurrentReport
	OwnershipForm
	RegistrationStatement
)

var formTypeCodes = map[FormType]string{
	AnnualReport:          "10-K",
	QuarterlyReport:       "10-Q",
	CurrentReport:         "8-K",
	OwnershipForm:         "4",
	RegistrationStatement: "S-1",
}

var formTypesByCode = func() map[string]FormType {
	m := make(map[string]FormType, len(formTypeCodes))
	for ft, code := range formTypeCodes {
		m[code] = ft
	}
	return m
}()

// Code returns the canonical string code the archive uses for the form type.
func (f FormType) Code() string {
	return formTypeCodes[f]
}

// Valid reports whether the form type is one of the recognized values.
func (f FormType) Valid() bool {
	_, ok := formTypeCodes[f]
	return ok
}

func (f FormType) String() string {
	if code, ok := formTypeCodes[f]; ok {
		return code
	}
	return fmt.Sprintf("FormType(%d)", int(f))
}

// ParseFormType resolves a canonical string code like "10-K".
func ParseFormType(code string) (FormType, error) {
	ft, ok := formTypesByCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormType, code)
	}
	return ft, nil
}

// FormTypeFromNumber resolves a stable numeric code.
func FormTypeFromNumber(n int) (FormType, error) {
	ft := FormType(n)
	if !ft.Valid() {
		return 0, fmt.Errorf("%w: numeric code %d", ErrUnknownFormType, n)
	}
	return ft, nil
}
