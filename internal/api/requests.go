package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gyaneshwarpardhi/never2/internal/property"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type appendLayerRequest struct {
	Signature string            `json:"signature" validate:"required"`
	Values    map[string]string `json:"values"`
	Confirm   bool              `json:"confirm"`
}

type updateLayerRequest struct {
	Values  map[string]string `json:"values" validate:"required,min=1"`
	Confirm bool              `json:"confirm"`
}

type setInputRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Dimension  []int  `json:"dimension" validate:"required,min=1,dive,gt=0"`
}

// propertyRequest carries every authoring form; kind selects which fields are read.
type propertyRequest struct {
	Kind       string    `json:"kind" validate:"required"`
	SMT        string    `json:"smt"`
	Expression string    `json:"expression"`
	Lower      []float64 `json:"lower"`
	Upper      []float64 `json:"upper"`
	Target     string    `json:"target"`
	Maximize   bool      `json:"maximize"`
	Confirm    bool      `json:"confirm"`
}

func (p *propertyRequest) definition() (property.Definition, error) {
	kind, err := property.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case property.KindSMT:
		return property.SMT{Text: p.SMT}, nil
	case property.KindPolyhedral:
		def, err := property.ParsePolyhedral(p.Expression)
		if err != nil {
			return nil, fmt.Errorf("expression: %w", err)
		}
		return def, nil
	case property.KindBox:
		return property.Box{Lower: p.Lower, Upper: p.Upper}, nil
	case property.KindClassification:
		if p.Target == "" {
			return nil, errors.New("target is required")
		}
		return property.Classification{Target: p.Target, Maximize: p.Maximize}, nil
	}
	return nil, fmt.Errorf("unsupported property kind %q", kind)
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type pathRequest struct {
	Path    string `json:"path" validate:"required"`
	Confirm bool   `json:"confirm"`
}

type saveRequest struct {
	Path string `json:"path"`
}

type jobRequest struct {
	Strategy string `json:"strategy" validate:"required"`
}

// decode reads a JSON body into v and validates it. On failure the response
// has been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}

func queryBool(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query %s: %q is not a boolean", name, raw))
		return false, false
	}
	return b, true
}

func pathSide(w http.ResponseWriter, r *http.Request) (session.Side, bool) {
	side := session.Side(r.PathValue("side"))
	if side != session.SidePre && side != session.SidePost {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown side %q", side))
		return "", false
	}
	return side, true
}
