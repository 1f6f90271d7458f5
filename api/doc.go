// Package api provides request/response types and OpenAPI documentation for
// the PlanFlow HTTP API.
//
// # API Overview
//
// PlanFlow provides a RESTful API for:
//   - Uploading SBC (Summary of Benefits and Coverage) PDF documents
//   - Structured plan summaries extracted via LLM
//   - Coverage category exploration across ten fixed service categories
//   - Plan-grounded chat, both synchronous and WebSocket streaming
//   - Health monitoring and metrics
//
// # Authentication
//
// Most API endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
