// Package orchestrator выполняет agent flow.
//
// ExecuteFlow — движок: строит очередь шагов от entryPoint (или в порядке
// массива), по одному извлекает шаги, проверяет время и условия, вызывает
// исполнитель, пишет результат в шину контекста, проверяет токены и
// дописывает в хвост очереди ветку, выбранную router-шагом.
//
// Orchestrator — обёртка для сервисов: принимает domain.ExecuteRequest,
// подставляет внешние возможности и замороженный реестр исполнителей.
package orchestrator
