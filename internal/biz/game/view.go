package game

import (
	"fmt"
	"strings"
)

// Choice 可点击的选项
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Field 画面中的一行键值
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// View 展示层无关的画面
type View struct {
	Title   string   `json:"title"`
	Body    string   `json:"body,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`
	Footer  string   `json:"footer,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
}

// AddField 追加一行
func (v *View) AddField(name, format string, args ...any) {
	v.Fields = append(v.Fields, Field{Name: name, Value: fmt.Sprintf(format, args...)})
}

// Text 纯文本形式，日志和测试使用
func (v View) Text() string {
	var sb strings.Builder
	sb.WriteString(v.Title)
	if v.Body != "" {
		sb.WriteString("\n" + v.Body)
	}
	for _, f := range v.Fields {
		sb.WriteString("\n" + f.Name + ": " + f.Value)
	}
	if v.Footer != "" {
		sb.WriteString("\n" + v.Footer)
	}
	return sb.String()
}

// Has 是否包含某个选项
func (v View) Has(id string) bool {
	for _, c := range v.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Contains 选项ID是否在列表中
func Contains(choices []Choice, id string) bool {
	for _, c := range choices {
		if c.ID == id {
			return true
		}
	}
	return false
}
