// Package scheduler запускает flow по расписанию.
//
// Расписания задаются в YAML (SCHEDULES_FILE): cron-выражение с часовым
// поясом или интервал в секундах. Каждое срабатывание создаёт выполнение
// с триггером scheduled и ключом идемпотентности "{name}_{due_unix}",
// поэтому повторный тик после сбоя не создаёт дубликат.
//
// Использование:
//
//	schedules, err := scheduler.LoadFile(os.Getenv("SCHEDULES_FILE"))
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: schedules,
//	    Store:     executionRepo,
//	    Publisher: publisher,
//	    Leader:    repo.NewAdvisoryLock(pool, lockKey),
//	    Logger:    logger,
//	})
//	go sched.Run(ctx)
//
// Без базы данных можно передать Runner: flow выполняется прямо в тике.
package scheduler
