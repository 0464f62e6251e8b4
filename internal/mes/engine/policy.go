package engine

import "fmt"

// 总进度计算方式
const (
	ProgressWeightingEqual          = "equal"
	ProgressWeightingTemplateWeight = "template_weight"
)

// Policy 生产业务策略，数值来自配置而非硬编码
type Policy struct {
	// AutoCompleteThreshold 按计划重量加权的批次完成比例达到该值时工序自动完成，0表示关闭
	AutoCompleteThreshold float64
	ProgressWeighting     string
	// AutoCompleteOrder 最后一道工序完成时MO自动完工
	AutoCompleteOrder   bool
	StopReasonMinLength int
}

// DefaultAutoCompleteThreshold 现场允许少量损耗时的默认阈值
const DefaultAutoCompleteThreshold = 0.90

// DefaultStopReasonMinLength 停产原因最少字符数
const DefaultStopReasonMinLength = 10

func DefaultPolicy() Policy {
	return Policy{
		AutoCompleteThreshold: DefaultAutoCompleteThreshold,
		ProgressWeighting:     ProgressWeightingEqual,
		AutoCompleteOrder:     true,
		StopReasonMinLength:   DefaultStopReasonMinLength,
	}
}

func (p Policy) Validate() error {
	if p.AutoCompleteThreshold < 0 || p.AutoCompleteThreshold > 1 {
		return fmt.Errorf("auto_complete_threshold must be within [0, 1], got %v", p.AutoCompleteThreshold)
	}
	switch p.ProgressWeighting {
	case ProgressWeightingEqual, ProgressWeightingTemplateWeight:
	default:
		return fmt.Errorf("unknown progress_weighting %q", p.ProgressWeighting)
	}
	if p.StopReasonMinLength < 1 {
		return fmt.Errorf("stop_reason_min_length must be positive, got %d", p.StopReasonMinLength)
	}
	return nil
}
