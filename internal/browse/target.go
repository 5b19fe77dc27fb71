package browse

import (
	"strconv"

	"github.com/hitoshi/albumview/internal/model"
)

// ParseTarget は文字列の画面種別とIDからTargetを生成し、検証する。
func ParseTarget(view string, id int) (Target, error) {
	t := Target{View: model.View(view), ID: id}
	if t.View == model.ViewAccountList {
		t.ID = 0
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
