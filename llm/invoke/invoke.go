// Package invoke 提供带温度阶梯与备用模型降级的结构化生成调用器。
//
// 调用器按配置的温度列表顺序串行尝试主模型，任一次成功立即返回；
// 主模型全部失败后，以固定的保守温度对备用模型做恰好一次降级尝试。
// 失败之间按线性退避等待（BaseDelay × 已完成次数），等待期间监听
// context 取消。
package invoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FallbackTemperature 是备用模型降级尝试使用的固定保守温度。
const FallbackTemperature float32 = 0.5

// DefaultTemperatures 是默认温度阶梯：保守、均衡、发散，最后再做一次
// 低温收敛重试。
var DefaultTemperatures = []float32{0.5, 0.7, 0.9, 0.3}

// Generator 是调用器驱动的生成能力接口。
// 实现方负责构造请求、解析响应并做 schema 校验：
// Generate 返回 nil error 时结果必须已通过校验。
type Generator[T any] interface {
	Generate(ctx context.Context, model string, temperature float32) (T, error)
}

// GeneratorFunc 将普通函数适配为 Generator。
type GeneratorFunc[T any] func(ctx context.Context, model string, temperature float32) (T, error)

func (f GeneratorFunc[T]) Generate(ctx context.Context, model string, temperature float32) (T, error) {
	return f(ctx, model, temperature)
}

// Options 定义调用器配置
// 遵循 KISS 原则：简单但功能完整的降级策略
type Options struct {
	Model        string                        // 主模型（必填）
	BackupModel  string                        // 备用模型（为空则不降级）
	Temperatures []float32                     // 温度阶梯，按配置顺序消耗
	MaxAttempts  int                           // 主模型最大尝试次数（0 表示取温度列表长度）
	BaseDelay    time.Duration                 // 线性退避基础延迟
	OnRetry      func(attempt int, err error)  // 每次失败后的观察回调
	Logger       *zap.Logger
}

// DefaultOptions 返回适用于大部分结构化生成场景的默认配置。
func DefaultOptions(model string) *Options {
	return &Options{
		Model:        model,
		Temperatures: DefaultTemperatures,
		BaseDelay:    1 * time.Second,
	}
}

// normalize 做参数校验与缺省填充。
func (o *Options) normalize() {
	if len(o.Temperatures) == 0 {
		o.Temperatures = DefaultTemperatures
	}
	if o.MaxAttempts <= 0 || o.MaxAttempts > len(o.Temperatures) {
		o.MaxAttempts = len(o.Temperatures)
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 1 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// ExhaustedError 表示主模型与备用模型（若配置）全部失败。
// Attempts 包含降级尝试；Cause 是最后一次失败的原因。
type ExhaustedError struct {
	Attempts     int
	FallbackUsed bool
	Cause        error
}

func (e *ExhaustedError) Error() string {
	if e.FallbackUsed {
		return fmt.Sprintf("structured generation failed after %d attempts (fallback model used): %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("structured generation failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// Do 执行带降级的结构化生成。
// 核心语义：温度阶梯串行尝试 + 至多一次成功 + 备用模型恰好一次降级。
func Do[T any](ctx context.Context, gen Generator[T], opts *Options) (T, error) {
	var zero T
	if opts == nil {
		return zero, fmt.Errorf("invoke: nil options")
	}
	if opts.Model == "" {
		return zero, fmt.Errorf("invoke: model is required")
	}
	o := *opts
	o.normalize()

	var lastErr error
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		temp := o.Temperatures[attempt-1]

		result, err := gen.Generate(ctx, o.Model, temp)
		if err == nil {
			if attempt > 1 {
				o.Logger.Info("结构化生成重试成功",
					zap.Int("attempt", attempt),
					zap.Float32("temperature", temp),
				)
			}
			return result, nil
		}
		lastErr = err

		o.Logger.Debug("结构化生成尝试失败",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.MaxAttempts),
			zap.String("model", o.Model),
			zap.Float32("temperature", temp),
			zap.Error(err),
		)
		if o.OnRetry != nil {
			o.OnRetry(attempt, err)
		}

		// 后面还有尝试（主模型或降级）才需要退避等待
		if attempt < o.MaxAttempts || o.BackupModel != "" {
			if err := sleepFn(ctx, o.BaseDelay*time.Duration(attempt)); err != nil {
				return zero, err
			}
		}
	}

	if o.BackupModel == "" {
		o.Logger.Warn("结构化生成次数耗尽",
			zap.Int("attempts", o.MaxAttempts),
			zap.Error(lastErr),
		)
		return zero, &ExhaustedError{Attempts: o.MaxAttempts, Cause: lastErr}
	}

	// 降级：备用模型恰好一次，固定保守温度
	o.Logger.Info("主模型耗尽，降级到备用模型",
		zap.String("model", o.Model),
		zap.String("backup_model", o.BackupModel),
		zap.Float32("temperature", FallbackTemperature),
	)
	result, err := gen.Generate(ctx, o.BackupModel, FallbackTemperature)
	if err == nil {
		return result, nil
	}
	if o.OnRetry != nil {
		o.OnRetry(o.MaxAttempts+1, err)
	}

	o.Logger.Warn("备用模型同样失败",
		zap.Int("attempts", o.MaxAttempts+1),
		zap.Error(err),
	)
	return zero, &ExhaustedError{
		Attempts:     o.MaxAttempts + 1,
		FallbackUsed: true,
		Cause:        err,
	}
}

// sleepFn 是退避等待的注入点，测试替换为记录用的假时钟
var sleepFn = sleep

// sleep 等待指定时长，同时监听 context 取消。
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("invoke: 退避等待被取消: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
