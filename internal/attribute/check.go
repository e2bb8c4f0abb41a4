package attribute

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/contract"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// CheckTarget selects the data a Check validates.
type CheckTarget string

const (
	// CheckGet validates query parameters.
	CheckGet CheckTarget = "GET"
	// CheckPost validates form values.
	CheckPost CheckTarget = "POST"
	// CheckParams validates the union of query and form values; form wins.
	CheckParams CheckTarget = "PARAMS"
	// CheckBody validates the raw body as a string.
	CheckBody CheckTarget = "BODY"
	// CheckPayload validates the JSON-decoded body.
	CheckPayload CheckTarget = "PAYLOAD"
	// CheckFiles validates uploaded files.
	CheckFiles CheckTarget = "FILES"
	// CheckOutput registers a contract enforced on the response data just
	// before rendering.
	CheckOutput CheckTarget = "OUTPUT"
)

// CheckConfig declares a Check. Exactly one of Fields or Contract is
// usually set; PAYLOAD checks may use Schema alone.
type CheckConfig struct {
	Target CheckTarget
	// Fields maps field names (with optional "?" suffix) to expressions.
	Fields map[string]string
	// Contract is a single expression or JSON-form contract.
	Contract string
	Strict   bool

	// Path selects a sub-document of a PAYLOAD with gjson syntax. Values
	// checked through a path are validated but not written back.
	Path string
	// Schema is a JSON Schema document applied to PAYLOAD data.
	Schema string

	Redirect RedirectTarget
	// FlashVar names the session slot receiving rejected input on
	// redirect. Defaults to "form"; "-" disables flashing.
	FlashVar string
}

// Check validates request data or registers an output contract.
type Check struct {
	target   CheckTarget
	contract *contract.Contract
	schema   *contract.Schema
	strict   bool
	path     string
	redirect RedirectTarget
	flashVar string
}

// NewCheck parses the contract and compiles the schema.
func NewCheck(cfg CheckConfig) (*Check, error) {
	c := &Check{
		target:   cfg.Target,
		strict:   cfg.Strict,
		path:     cfg.Path,
		redirect: cfg.Redirect,
		flashVar: cfg.FlashVar,
	}
	if c.flashVar == "" {
		c.flashVar = DefaultFlashVar
	}

	switch cfg.Target {
	case CheckGet, CheckPost, CheckParams, CheckBody, CheckPayload, CheckFiles, CheckOutput:
	default:
		return nil, fmt.Errorf("check: unknown target %q", cfg.Target)
	}

	var err error
	switch {
	case len(cfg.Fields) > 0:
		c.contract, err = contract.FromFields(cfg.Fields)
	case cfg.Contract != "":
		c.contract, err = contract.Cached(cfg.Contract)
	}
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", cfg.Target, err)
	}

	if cfg.Schema != "" {
		if cfg.Target != CheckPayload {
			return nil, fmt.Errorf("check %s: schema only applies to PAYLOAD", cfg.Target)
		}
		if c.schema, err = contract.CompileSchema("check-"+string(cfg.Target), cfg.Schema); err != nil {
			return nil, fmt.Errorf("check %s: %w", cfg.Target, err)
		}
	}
	if cfg.Path != "" && cfg.Target != CheckPayload {
		return nil, fmt.Errorf("check %s: path only applies to PAYLOAD", cfg.Target)
	}

	if c.contract == nil && c.schema == nil {
		return nil, fmt.Errorf("check %s: no contract", cfg.Target)
	}
	if c.contract != nil && c.contract.Type != contract.TypeAssoc {
		switch cfg.Target {
		case CheckGet, CheckPost, CheckParams, CheckFiles, CheckOutput:
			return nil, fmt.Errorf("check %s: requires an assoc contract, got %s", cfg.Target, c.contract.Type)
		}
	}
	return c, nil
}

// MustCheck is NewCheck that panics on error.
func MustCheck(cfg CheckConfig) *Check {
	c, err := NewCheck(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Params is shorthand for a PARAMS check over a field map.
func Params(fields map[string]string) *Check {
	return MustCheck(CheckConfig{Target: CheckParams, Fields: fields})
}

// Output is shorthand for an OUTPUT check over a field map.
func Output(fields map[string]string) *Check {
	return MustCheck(CheckConfig{Target: CheckOutput, Fields: fields})
}

func (c *Check) Name() string { return "Check(" + string(c.target) + ")" }

// Contract returns the parsed contract, or nil for schema-only checks.
func (c *Check) Contract() *contract.Contract { return c.contract }

func (c *Check) Apply(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	var (
		input any
		err   error
	)

	switch c.target {
	case CheckOutput:
		ac.AddOutputContract(c.contract, c.strict)
		return domain.Continue(), nil

	case CheckGet:
		input = ac.Query()
		var out map[string]any
		if out, err = contract.ValidateMap(ac.Query(), c.contract, c.strict); err == nil {
			ac.SetQuery(out)
		}

	case CheckPost:
		input = ac.Form()
		var out map[string]any
		if out, err = contract.ValidateMap(ac.Form(), c.contract, c.strict); err == nil {
			ac.SetForm(out)
		}

	case CheckParams:
		input, err = c.checkParams(ac)

	case CheckFiles:
		input = ac.Files()
		var out map[string]any
		if out, err = contract.ValidateMap(ac.Files(), c.contract, c.strict); err == nil {
			ac.SetFiles(out)
		}

	case CheckBody:
		var body []byte
		if body, err = ac.Body(); err != nil {
			return domain.Continue(), fmt.Errorf("%s: read body: %w", c.Name(), err)
		}
		input = string(body)
		_, err = contract.Validate(input, c.contract, c.strict)

	case CheckPayload:
		input, err = c.checkPayload(ac)
	}

	if err == nil {
		return domain.Continue(), nil
	}

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return domain.Continue(), err
	}
	return fail(ctx, ac, c.Name(), c.redirect, KeyCheckRedirect, ve, func(ctx context.Context) error {
		if c.flashVar == "-" {
			return nil
		}
		return ac.SetFlash(ctx, c.flashVar, map[string]any{
			"input":  input,
			"field":  ve.Field,
			"reason": ve.Reason,
		})
	})
}

// checkParams validates query ∪ form and writes each coerced key back to
// the map that supplied it. Keys introduced by defaults go to the query.
func (c *Check) checkParams(ac *action.Context) (map[string]any, error) {
	query, form := ac.Query(), ac.Form()
	merged := make(map[string]any, len(query)+len(form))
	for k, v := range query {
		merged[k] = v
	}
	for k, v := range form {
		merged[k] = v
	}

	out, err := contract.ValidateMap(merged, c.contract, c.strict)
	if err != nil {
		return merged, err
	}

	newQuery := make(map[string]any, len(query))
	for k, v := range query {
		newQuery[k] = v
	}
	newForm := make(map[string]any, len(form))
	for k, v := range form {
		newForm[k] = v
	}
	for k, v := range out {
		if _, inForm := form[k]; inForm {
			newForm[k] = v
		} else {
			newQuery[k] = v
		}
	}
	ac.SetQuery(newQuery)
	ac.SetForm(newForm)
	return merged, nil
}

func (c *Check) checkPayload(ac *action.Context) (any, error) {
	var doc any
	if c.path != "" {
		body, err := ac.Body()
		if err != nil {
			return nil, fmt.Errorf("%s: read body: %w", c.Name(), err)
		}
		if !gjson.ValidBytes(body) {
			return string(body), &domain.ValidationError{Field: c.path, Reason: domain.ReasonFormat, Detail: "invalid JSON body"}
		}
		if res := gjson.GetBytes(body, c.path); res.Exists() {
			doc = res.Value()
		}
	} else {
		payload, err := ac.Payload()
		if err != nil {
			return nil, err
		}
		doc = payload
	}

	if doc == nil && c.contract != nil && c.contract.Type == contract.TypeAssoc {
		doc = map[string]any{}
	}

	if c.schema != nil {
		if err := c.schema.Validate(doc); err != nil {
			return doc, prefixField(err, c.path)
		}
	}
	if c.contract == nil {
		return doc, nil
	}

	coerced, err := contract.Validate(doc, c.contract, c.strict)
	if err != nil {
		return doc, prefixField(err, c.path)
	}
	if c.path == "" {
		ac.SetPayload(coerced)
	}
	return doc, nil
}

// prefixField reports validation failures under a gjson path relative to
// the whole payload.
func prefixField(err error, path string) error {
	var ve *domain.ValidationError
	if path == "" || !errors.As(err, &ve) {
		return err
	}
	out := *ve
	switch {
	case ve.Field == "":
		out.Field = path
	case ve.Field[0] == '[':
		out.Field = path + ve.Field
	default:
		out.Field = path + "." + ve.Field
	}
	return &out
}
