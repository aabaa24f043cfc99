// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Stores de janela fixa:
//   - RedisWindowStore: script Lua atômico (INCR + PEXPIRE na criação + PTTL), compartilhado entre instâncias
//   - SQLiteWindowStore: UPSERT ... RETURNING num arquivo SQLite (modernc.org/sqlite)
//   - MemoryWindowStore: mapa com mutex, só dentro do processo
//
// Demais:
//   - RuleRegistry: regras vigentes com troca atômica (copy-on-write)
//   - MemoryStatsStore, RedisStatsStore, PrometheusStats, TeeStats: destinos do evento pós-avaliação
//   - ChanPool: semáforo simples para limite de concorrência
package infra
