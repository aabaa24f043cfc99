// Package ratelimit fornece adapters HTTP (net/http) para rate limit de janela fixa
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: motor de decisão, política de degradação e acquire/timeout, sem net/http
//   - infra: stores de janela (Redis/SQLite/memória), registro de regras, estatísticas
//   - ratelimit (este pacote): middlewares HTTP + extração de identidade + tradução para status/headers
//
// Fluxo por requisição:
//
//  1. Extrai a identidade do cliente (header/XFF/IP) e a origem
//  2. Guard.Check resolve a regra vigente e avalia a janela no store compartilhado
//  3. Bloqueado: 429 com JSON e headers X-RateLimit-*
//  4. Permitido (ou fail-open): chama o próximo handler
//
// Variáveis de ambiente dos binários (cmd/limitguard, cmd/gateway) controlam o
// comportamento, como RATE_LIMIT, RATE_WINDOW_SECONDS, FAIL_MODE e STORE_BACKEND.
package ratelimit
