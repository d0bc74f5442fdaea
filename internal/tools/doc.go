// Package tools — каталог инструментов для шагов tool.
//
// Инструмент — функция над map входных параметров. Каталог содержит
// встроенные инструменты (RegisterBuiltins) и webhooks, описанные в
// YAML файле (LoadFile).
package tools
