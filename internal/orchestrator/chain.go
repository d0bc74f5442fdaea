package orchestrator

import "github.com/shaiso/AgentFlow/internal/domain"

// buildChainFrom строит цепочку ID, начиная с startID.
//
// Одиночный next продолжает цепочку. Массив next добавляет все цели
// и дальше от них не идёт. Без next берётся следующий по порядку шаг.
// Уже посещённые ID пропускаются, поэтому циклы обрываются.
// Неизвестный ID попадает в цепочку и на нём она заканчивается.
func buildChainFrom(flow *domain.AgentFlow, startID string) []string {
	var chain []string
	visited := make(map[string]bool)

	cur := startID
	for cur != "" && !visited[cur] {
		visited[cur] = true
		chain = append(chain, cur)

		step, ok := flow.StepByID(cur)
		if !ok {
			break
		}

		if step.Next.Fanout {
			for _, target := range step.Next.Targets {
				if !visited[target] {
					visited[target] = true
					chain = append(chain, target)
				}
			}
			break
		}

		if next, ok := step.Next.Single(); ok {
			cur = next
			continue
		}

		cur = ""
		if idx := flow.IndexOf(step.ID); idx >= 0 && idx+1 < len(flow.Steps) {
			cur = flow.Steps[idx+1].ID
		}
	}

	return chain
}

// initialQueue возвращает стартовую очередь: цепочку от entryPoint или,
// без entryPoint, все шаги в порядке массива (next игнорируется).
func initialQueue(flow *domain.AgentFlow) []string {
	if flow.EntryPoint != "" {
		if _, ok := flow.StepByID(flow.EntryPoint); ok {
			return buildChainFrom(flow, flow.EntryPoint)
		}
	}

	ids := make([]string, 0, len(flow.Steps))
	for _, s := range flow.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}
