package canvasrenderer

import "github.com/ByLCY/adsmith/layout"

// LayerStatus 是单个图层的合成结果。
type LayerStatus string

const (
	StatusPainted LayerStatus = "painted"
	StatusSkipped LayerStatus = "skipped"
	StatusFailed  LayerStatus = "failed"
)

// LayerReport 记录图层的绘制情况，按绘制顺序排列。
type LayerReport struct {
	Index  int              `json:"index"`
	Type   layout.LayerType `json:"type"`
	Status LayerStatus      `json:"status"`
	Reason string           `json:"reason,omitempty"`
	Source string           `json:"source,omitempty"`
	Text   string           `json:"text,omitempty"`
	Font   string           `json:"font,omitempty"`
	Block  *layout.Block    `json:"block,omitempty"`
}

// Report 是一次合成的调试报告。
type Report struct {
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Layers []LayerReport `json:"layers"`
}

// Count returns how many layers ended with status.
func (r *Report) Count(status LayerStatus) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, l := range r.Layers {
		if l.Status == status {
			n++
		}
	}
	return n
}

// Layer 返回存储下标为 index 的图层报告。
func (r *Report) Layer(index int) (LayerReport, bool) {
	if r == nil {
		return LayerReport{}, false
	}
	for _, l := range r.Layers {
		if l.Index == index {
			return l, true
		}
	}
	return LayerReport{}, false
}

// WriteReportJSON 输出报告，便于排查模板问题。
func WriteReportJSON(r *Report, path string) error {
	if r == nil {
		return nil
	}
	return layout.WriteDebugJSON(r, path)
}

func painted() LayerReport { return LayerReport{Status: StatusPainted} }

func skipped(reason string) LayerReport {
	return LayerReport{Status: StatusSkipped, Reason: reason}
}

func failed(err error) LayerReport {
	return LayerReport{Status: StatusFailed, Reason: err.Error()}
}
