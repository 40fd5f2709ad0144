// Package chunkhttp реализует HTTP API сервиса чанковой загрузки поверх chunksvc. Основные эндпоинты:
//   - GET /api/check?hash= — возвращает уже полученные индексы чанков сессии.
//   - POST /api/upload — принимает чанк multipart-формой (hash, index, sha256, files).
//   - PUT /api/chunks/{hash}/{index} — принимает чанк сырым телом запроса.
//   - POST /api/merge — склеивает чанки сессии в файл и удаляет сессию.
//   - GET /api/artifacts/{name} — отдаёт метаданные собранного файла.
//   - POST /admin/gc — вручную удаляет брошенные сессии.
//   - GET /admin/sessions — список незавершённых сессий.
//   - GET /health — проверка доступности хранилища.
package chunkhttp
