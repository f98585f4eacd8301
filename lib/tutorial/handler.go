// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package tutorial

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// CalculatorHandler is the reference Calculator: it computes, and logs
// each calculation's result under the caller's log id for getStruct.
type CalculatorHandler struct {
	logger *slog.Logger

	mu  sync.Mutex
	log map[int32]*SharedStruct
}

var _ Calculator = (*CalculatorHandler)(nil)

func NewCalculatorHandler(logger *slog.Logger) *CalculatorHandler {
	return &CalculatorHandler{
		logger: logger,
		log:    make(map[int32]*SharedStruct),
	}
}

func (h *CalculatorHandler) Ping(ctx context.Context) error {
	h.logger.Info("ping()")
	return nil
}

func (h *CalculatorHandler) Add(ctx context.Context, num1, num2 int32) (int32, error) {
	h.logger.Info("add()", "num1", num1, "num2", num2)
	return num1 + num2, nil
}

func (h *CalculatorHandler) Calculate(ctx context.Context, logID int32, work *Work) (int32, error) {
	h.logger.Info("calculate()", "logid", logID, "work", work.String())

	var value int32
	switch work.Op {
	case Add:
		value = work.Num1 + work.Num2
	case Subtract:
		value = work.Num1 - work.Num2
	case Multiply:
		value = work.Num1 * work.Num2
	case Divide:
		if work.Num2 == 0 {
			return 0, &InvalidOperation{WhatOp: int32(work.Op), Why: "Cannot divide by 0"}
		}
		value = work.Num1 / work.Num2
	default:
		return 0, &InvalidOperation{WhatOp: int32(work.Op), Why: "Invalid operation"}
	}

	h.mu.Lock()
	h.log[logID] = &SharedStruct{Key: logID, Value: strconv.Itoa(int(value))}
	h.mu.Unlock()
	return value, nil
}

// GetStruct returns the calculation logged under key. A key nothing was
// logged under yields no result, which the client sees as a
// MISSING_RESULT ApplicationException.
func (h *CalculatorHandler) GetStruct(ctx context.Context, key int32) (*SharedStruct, error) {
	h.logger.Info("getStruct()", "key", key)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log[key], nil
}

func (h *CalculatorHandler) Zip(ctx context.Context) error {
	h.logger.Info("zip()")
	return nil
}
