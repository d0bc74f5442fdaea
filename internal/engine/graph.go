package engine

import (
	"sort"

	"github.com/shaiso/AgentFlow/internal/domain"
)

// Node — узел графа шагов.
type Node struct {
	// Step — определение шага.
	Step *domain.AgentFlowStep

	// ID — идентификатор шага.
	ID string

	// Next — узлы, в которые ведут рёбра из этого узла.
	Next []*Node

	// Prev — узлы, из которых есть рёбра в этот узел.
	Prev []*Node
}

// Graph — граф переходов flow.
//
// Рёбра строятся так же, как их проходит движок от точки входа:
// явный next (строка или массив), переход к следующему шагу массива
// при отсутствии next, а также цели router-шагов из config.
// Циклы допустимы: движок не выполняет шаг повторно.
type Graph struct {
	// Nodes — все узлы графа (stepID → Node).
	Nodes map[string]*Node

	// Order — узлы в порядке объявления шагов.
	Order []*Node
}

// BuildGraph строит граф переходов.
// Ссылки на несуществующие шаги пропускаются: их ловит Validate.
func BuildGraph(flow *domain.AgentFlow) *Graph {
	g := &Graph{
		Nodes: make(map[string]*Node, len(flow.Steps)),
		Order: make([]*Node, 0, len(flow.Steps)),
	}

	// Первый проход: создаём все узлы
	for i := range flow.Steps {
		step := &flow.Steps[i]
		if _, exists := g.Nodes[step.ID]; exists {
			continue
		}
		node := &Node{Step: step, ID: step.ID}
		g.Nodes[step.ID] = node
		g.Order = append(g.Order, node)
	}

	// Второй проход: связываем узлы
	for i := range flow.Steps {
		step := &flow.Steps[i]
		from := g.Nodes[step.ID]

		targets := append([]string(nil), step.Next.Targets...)
		if step.Next.IsZero() && i+1 < len(flow.Steps) {
			targets = []string{flow.Steps[i+1].ID}
		}
		targets = append(targets, RouterTargets(step)...)

		for _, id := range targets {
			if to, ok := g.Nodes[id]; ok {
				g.addEdge(from, to)
			}
		}
	}

	return g
}

// addEdge добавляет ребро между узлами, пропуская дубликаты.
func (g *Graph) addEdge(from, to *Node) {
	for _, n := range from.Next {
		if n.ID == to.ID {
			return
		}
	}
	from.Next = append(from.Next, to)
	to.Prev = append(to.Prev, from)
}

// GetNode возвращает узел по ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Reachable возвращает множество шагов, достижимых из from (включая from).
func (g *Graph) Reachable(from string) map[string]bool {
	seen := make(map[string]bool)
	start, ok := g.Nodes[from]
	if !ok {
		return seen
	}

	stack := []*Node{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		for _, next := range node.Next {
			if !seen[next.ID] {
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// Cyclic возвращает отсортированный список шагов, входящих в циклы
// или достижимых только через них (алгоритм Кана).
func (g *Graph) Cyclic() []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = len(node.Prev)
	}

	queue := make([]*Node, 0)
	for _, node := range g.Order {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node)
		}
	}

	processed := make(map[string]bool, len(g.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		processed[node.ID] = true

		for _, next := range node.Next {
			inDegree[next.ID]--
			if inDegree[next.ID] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var cyclic []string
	for id := range g.Nodes {
		if !processed[id] {
			cyclic = append(cyclic, id)
		}
	}
	sort.Strings(cyclic)
	return cyclic
}

// RouterTargets возвращает ID шагов, упомянутых в config router-шага:
// routes[].target, branches[].id и defaultTarget.
func RouterTargets(step *domain.AgentFlowStep) []string {
	if step.Type != "router" || step.Config == nil {
		return nil
	}

	var targets []string
	collect := func(key, field string) {
		items, _ := step.Config[key].([]any)
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := m[field].(string); ok && id != "" {
				targets = append(targets, id)
			}
		}
	}
	collect("routes", "target")
	collect("branches", "id")

	if def, ok := step.Config["defaultTarget"].(string); ok && def != "" {
		targets = append(targets, def)
	}
	return targets
}
