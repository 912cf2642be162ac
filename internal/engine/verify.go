package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// IntegrityCheck names the built-in check comparing the newest transaction
// with the files on disk.
const IntegrityCheck = "tx_integrity"

// Verify runs the integrity check and every configured check against root.
// All checks run even after a failure.
func (e *Engine) Verify(ctx context.Context, root string) (*backend.VerifyResult, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	e.logf("verifying %s", root)

	integrity, err := e.integrity(root)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	res := &backend.VerifyResult{OK: integrity.Passed, Checks: []backend.CheckResult{integrity}}

	gate, err := e.runGate(ctx, root, "verify", true)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	res.Checks = append(res.Checks, gate.CheckResults()...)
	res.OK = res.OK && gate.Passed

	e.log.Info("verified", zap.String("root", root), zap.Bool("ok", res.OK), zap.Int("checks", len(res.Checks)))
	return res, nil
}

func (e *Engine) integrity(root string) (backend.CheckResult, error) {
	res := backend.CheckResult{Name: IntegrityCheck, Passed: true}
	ref, err := e.txlog.LatestFor(root)
	if err != nil {
		return res, err
	}
	if ref == nil {
		res.Summary = "no transactions recorded"
		return res, nil
	}
	tx, err := e.txlog.Get(ref.ID)
	if err != nil {
		return res, err
	}

	final := make(map[string]Entry)
	var order []string
	for _, c := range tx.Changes {
		if _, ok := final[c.Path]; !ok {
			order = append(order, c.Path)
		}
		final[c.Path] = c.After
	}
	var drifted []string
	for _, p := range order {
		cur, err := capture(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil || !cur.Same(final[p]) {
			drifted = append(drifted, p)
		}
	}
	if len(drifted) > 0 {
		res.Passed = false
		res.Summary = fmt.Sprintf("%d paths changed since tx %s", len(drifted), tx.ID)
		res.Output = fmt.Sprintf("%v", drifted)
		return res, nil
	}
	res.Summary = fmt.Sprintf("tx %s matches disk (%d paths)", tx.ID, len(order))
	return res, nil
}
