package reconcile

import (
	"time"

	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/speed"
	"github.com/dokzlo13/treeremote/internal/tree"
)

// ViewModel is everything a view layer needs to paint the controls.
// It is derived on every tick and never edited directly.
type ViewModel struct {
	Mode       tree.Mode      `json:"mode"`
	ProgramID  string         `json:"program_id"`
	Programs   []tree.Program `json:"programs"`
	Speed      SpeedView      `json:"speed"`
	Brightness BrightnessView `json:"brightness"`
	Schedule   ScheduleView   `json:"schedule"`
	Countdown  string         `json:"countdown"`
	Status     string         `json:"status"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SpeedView is the speed slider projection.
type SpeedView struct {
	Ready   bool         `json:"ready"`
	Percent int          `json:"percent"`
	Value   float64      `json:"value"`
	Label   string       `json:"label"`
	Bounds  speed.Bounds `json:"bounds"`
}

// BrightnessView is the pair of brightness sliders.
type BrightnessView struct {
	BodyPct   float64 `json:"body_pct"`
	StarPct   float64 `json:"star_pct"`
	BodyLabel string  `json:"body_label"`
	StarLabel string  `json:"star_label"`
}

// ScheduleView is the schedule editor projection.
type ScheduleView struct {
	Blocks    []schedule.Block     `json:"blocks"`
	State     schedule.EditorState `json:"state"`
	CanAdd    bool                 `json:"can_add"`
	CanRemove bool                 `json:"can_remove"`
	InWindow  bool                 `json:"in_window"`
	Hint      string               `json:"hint"`
}
