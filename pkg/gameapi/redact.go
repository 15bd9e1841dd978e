package gameapi

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/xrpracing/racegarage/pkg/errs"
)

// keys which would carry the hidden car attributes
var hiddenKeys = []string{
	"flags",
	"weights",
	"attributes_raw",
	"hidden_attributes",
	"secret_flags",
	"formula",
}

var (
	hiddenKeyExprs     = buildHiddenKeyExprs()
	allValuesExpr      = jp.MustParseString("$..*")
	trainedAttrsExpr   = jp.MustParseString("$..trained_attributes")
	trainedAttrsAllows = "a list of attribute names"
)

func buildHiddenKeyExprs() []jp.Expr {
	ret := make([]jp.Expr, 0, len(hiddenKeys))
	for _, k := range hiddenKeys {
		ret = append(ret, jp.MustParseString(fmt.Sprintf("$..['%s']", k)))
	}
	return ret
}

// checkRedacted fails with errs.ErrHiddenDataLeak if the response document
// contains anything that looks like hidden car data: a hidden attribute key,
// any array of numbers or trained_attributes which is not a list of names.
func checkRedacted(body []byte) error {
	doc, err := oj.Parse(body)
	if err != nil {
		return fmt.Errorf("gameapi: invalid json: %w", err)
	}
	for i, x := range hiddenKeyExprs {
		if len(x.Get(doc)) > 0 {
			return fmt.Errorf("key %q: %w", hiddenKeys[i], errs.ErrHiddenDataLeak)
		}
	}
	if isNumericArray(doc) {
		return fmt.Errorf("numeric array at root: %w", errs.ErrHiddenDataLeak)
	}
	for _, v := range allValuesExpr.Get(doc) {
		if isNumericArray(v) {
			return fmt.Errorf("numeric array: %w", errs.ErrHiddenDataLeak)
		}
	}
	for _, v := range trainedAttrsExpr.Get(doc) {
		if v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("trained_attributes is not %s: %w", trainedAttrsAllows, errs.ErrHiddenDataLeak)
		}
		for _, e := range list {
			if _, ok := e.(string); !ok {
				return fmt.Errorf("trained_attributes is not %s: %w", trainedAttrsAllows, errs.ErrHiddenDataLeak)
			}
		}
	}
	return nil
}

func isNumericArray(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, e := range list {
		switch e.(type) {
		case int64, float64, json.Number:
			return true
		}
	}
	return false
}
