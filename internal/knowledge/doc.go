// Package knowledge — база знаний для шагов rag.
//
// Store хранит документы в коллекциях chromem-go (одна коллекция на
// vector store) и ищет по косинусной близости эмбеддингов. LoadDir
// загружает каталог markdown и текстовых файлов, предварительно нарезав
// их SplitText.
package knowledge
