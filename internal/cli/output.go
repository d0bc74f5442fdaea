package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output для stdout/stderr. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с произвольными writer'ами.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выравнивает колонки tabwriter'ом; под заголовком идёт строка из дефисов.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	for _, row := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}

// JSON печатает v с отступом в два пробела.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(err.Error())
	}
}

// Result выводит итог выполнения: таблицу трассировки шагов, диагностики
// и финальный output. В JSON режиме выводится результат целиком.
func (o *Output) Result(res *domain.FlowExecutionResult) {
	if o.jsonMode {
		o.JSON(res)
		return
	}
	if res == nil {
		o.Success("no result")
		return
	}

	rows := make([][]string, len(res.Steps))
	for i, s := range res.Steps {
		tokens := "-"
		if s.TokenUsage != nil {
			tokens = strconv.Itoa(s.TokenUsage.TotalTokens)
		}
		rows[i] = []string{s.StepID, s.Type, string(s.Status), strconv.FormatInt(s.DurationMs, 10), tokens, s.Error}
	}
	o.Table([]string{"STEP", "TYPE", "STATUS", "MS", "TOKENS", "ERROR"}, rows)

	for _, d := range res.Diagnostics {
		fmt.Fprintf(o.errW, "diagnostic [%s]: %s\n", d.StepID, d.Message)
	}

	fmt.Fprintln(o.w)
	fmt.Fprintf(o.w, "success: %t  tokens: %d  duration: %dms\n",
		res.Success, res.TotalTokenUsage.TotalTokens, res.TotalDurationMs)
	if res.Error != "" {
		fmt.Fprintf(o.w, "error: %s\n", res.Error)
	}
	if res.Output != nil {
		fmt.Fprintf(o.w, "output: %s\n", formatValue(res.Output))
	}
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Warning выводит предупреждение в stderr.
func (o *Output) Warning(msg string) {
	fmt.Fprintln(o.errW, "Warning: "+msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
