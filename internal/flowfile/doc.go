// Package flowfile читает определения flow и запросы на выполнение из
// YAML и JSON файлов.
//
// Пример:
//
//	agentId: support-bot
//	scopes:
//	  allowedModels: [openai/gpt-4o-mini]
//	  maxTotalTokens: 4000
//	trigger:
//	  type: message_received
//	  content: Where is my order?
//	flow:
//	  entryPoint: classify
//	  steps:
//	    - id: classify
//	      type: llm
//	      config:
//	        prompt: "Classify: {{trigger.content}}"
//	      next: answer
//	    - id: answer
//	      type: transform
package flowfile
