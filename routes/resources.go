package routes

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/crawler"
	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/queue"
	"saas-agency-platform/internal/storage"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/middleware"
	"saas-agency-platform/models"
	"saas-agency-platform/utils"
)

type ResourceDeps struct {
	Config    *config.Config
	Resources store.ResourceStore
	Chunks    store.ChunkStore
	Files     *storage.Manager
	Queue     *asynq.Client
	Auth      *middleware.AuthMiddleware
}

type linkRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

type noteRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// SetupResourceRoutes wires the brand knowledge base endpoints. Every handler
// takes the brand id from the caller's token, never from the request.
func SetupResourceRoutes(router *gin.Engine, deps ResourceDeps) {
	group := router.Group("/resources")
	group.Use(deps.Auth.RequireAuth())
	group.Use(middleware.EnrichTrace())

	group.POST("/files", func(c *gin.Context) { uploadFile(c, deps) })
	group.POST("/links", func(c *gin.Context) { addLink(c, deps) })
	group.POST("/notes", func(c *gin.Context) { addNote(c, deps) })
	group.GET("", func(c *gin.Context) { listResources(c, deps) })
	group.GET("/export", func(c *gin.Context) { exportResources(c, deps) })
	group.GET("/:id", func(c *gin.Context) { getResource(c, deps) })
	group.POST("/:id/retry", func(c *gin.Context) { retryResource(c, deps) })
	group.DELETE("/:id", func(c *gin.Context) { deleteResource(c, deps) })
}

func uploadFile(c *gin.Context, deps ResourceDeps) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "A file is required", gin.H{"error": err.Error()})
		return
	}
	if fileHeader.Size > deps.Config.MaxFileSize {
		utils.RespondWithBadRequest(c, fmt.Sprintf("File exceeds the %d byte limit", deps.Config.MaxFileSize), nil)
		return
	}

	mediaType := fileHeader.Header.Get("Content-Type")
	allowed := false
	for _, t := range deps.Config.AllowedTypes {
		if strings.TrimSpace(t) == mediaType {
			allowed = true
			break
		}
	}
	if !allowed {
		utils.RespondWithBadRequest(c, fmt.Sprintf("Unsupported file type %s", mediaType), nil)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read upload", nil)
		return
	}
	defer src.Close()

	stored, err := deps.Files.Store(brandID, fileHeader.Filename, mediaType, src)
	if err != nil {
		utils.RespondWithBadRequest(c, "Failed to store file", gin.H{"error": err.Error()})
		return
	}

	// Same bytes already uploaded by this brand: point the caller at the
	// existing resource instead of indexing it twice.
	if existing, err := deps.Resources.FindByHash(c.Request.Context(), brandID, stored.Hash); err == nil && existing != nil {
		deps.Files.Remove(stored.Path)
		utils.RespondWithConflict(c, "An identical file already exists", gin.H{"resource_id": existing.ID.Hex()})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	res := &models.Resource{
		BrandID:      brandID,
		Kind:         models.KindFile,
		MediaType:    mediaType,
		Title:        title,
		OriginalName: fileHeader.Filename,
		FilePath:     stored.Path,
		FileHash:     stored.Hash,
		SizeBytes:    stored.Size,
		Status:       models.StatusPending,
	}
	if err := deps.Resources.Insert(c.Request.Context(), res); err != nil {
		deps.Files.Remove(stored.Path)
		utils.RespondWithInternalError(c, "Failed to create resource", nil)
		return
	}

	enqueueIngest(c, deps, res)
}

func addLink(c *gin.Context, deps ResourceDeps) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	// The page is captured now; ingestion works from the stored text and
	// never re-fetches, so a later site change cannot alter what was indexed.
	page, err := crawler.FetchPage(req.URL, crawler.FetchConfig{
		Timeout:       time.Duration(deps.Config.CrawlTimeoutSeconds) * time.Second,
		MaxBytes:      deps.Config.CrawlMaxContentBytes,
		RenderJS:      deps.Config.CrawlRenderJS,
		RenderTimeout: time.Duration(deps.Config.CrawlTimeoutSeconds) * time.Second,
	})
	if err != nil {
		utils.RespondWithBadRequest(c, "Failed to fetch page", gin.H{"error": err.Error()})
		return
	}

	title := req.Title
	if title == "" {
		title = page.Title
	}
	if title == "" {
		title = page.URL
	}

	res := &models.Resource{
		BrandID:   brandID,
		Kind:      models.KindLink,
		Title:     title,
		SourceURL: page.URL,
		Text:      page.Text,
		Status:    models.StatusPending,
	}
	if err := deps.Resources.Insert(c.Request.Context(), res); err != nil {
		utils.RespondWithInternalError(c, "Failed to create resource", nil)
		return
	}

	enqueueIngest(c, deps, res)
}

func addNote(c *gin.Context, deps ResourceDeps) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	res := &models.Resource{
		BrandID: brandID,
		Kind:    models.KindNote,
		Title:   req.Title,
		Text:    req.Text,
		Status:  models.StatusPending,
	}
	if err := deps.Resources.Insert(c.Request.Context(), res); err != nil {
		utils.RespondWithInternalError(c, "Failed to create resource", nil)
		return
	}

	enqueueIngest(c, deps, res)
}

func enqueueIngest(c *gin.Context, deps ResourceDeps, res *models.Resource) {
	timeout := time.Duration(deps.Config.IngestTimeoutMinutes) * time.Minute
	task, err := queue.NewIngestTask(res.ID, res.BrandID, timeout)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to schedule ingestion", nil)
		return
	}
	if _, err := deps.Queue.Enqueue(task); err != nil {
		logger.Error("Failed to enqueue ingest task", "resource_id", res.ID.Hex(), "error", err)
		deps.Resources.SetError(c.Request.Context(), res.ID, "failed to schedule ingestion")
		utils.RespondWithInternalError(c, "Failed to schedule ingestion", nil)
		return
	}

	c.JSON(http.StatusAccepted, res)
}

func listResources(c *gin.Context, deps ResourceDeps) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return
	}

	resources, err := deps.Resources.List(c.Request.Context(), brandID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list resources", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources, "count": len(resources)})
}

func getResource(c *gin.Context, deps ResourceDeps) {
	res, ok := loadBrandResource(c, deps)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

// retryResource re-enqueues an errored (or any settled) resource. The claim
// inside the pipeline rejects the run if another one is already in flight.
func retryResource(c *gin.Context, deps ResourceDeps) {
	res, ok := loadBrandResource(c, deps)
	if !ok {
		return
	}
	if res.Status == models.StatusIndexing {
		utils.RespondWithConflict(c, "Resource is already being indexed", nil)
		return
	}

	enqueueIngest(c, deps, res)
}

// deleteResource removes chunks first, then the resource document. If the
// second step fails the retry repeats the chunk deletion as a no-op, so the
// index never keeps chunks of a deleted resource.
func deleteResource(c *gin.Context, deps ResourceDeps) {
	res, ok := loadBrandResource(c, deps)
	if !ok {
		return
	}

	if err := deps.Chunks.DeleteByResource(c.Request.Context(), res.ID); err != nil {
		utils.RespondWithInternalError(c, "Failed to delete resource chunks", nil)
		return
	}
	if err := deps.Resources.Delete(c.Request.Context(), res.ID); err != nil {
		utils.RespondWithInternalError(c, "Failed to delete resource", nil)
		return
	}
	if res.FilePath != "" {
		if err := deps.Files.Remove(res.FilePath); err != nil {
			logger.Warn("Failed to remove stored file", "path", res.FilePath, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "resource deleted"})
}

func exportResources(c *gin.Context, deps ResourceDeps) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return
	}

	resources, err := deps.Resources.List(c.Request.Context(), brandID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list resources", nil)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Resources"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build export", nil)
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Kind", "Title", "Status", "Chunks", "Tokens", "Error", "Created At", "Indexed At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, res := range resources {
		row := rowIdx + 2
		indexedAt := ""
		if res.IndexedAt != nil {
			indexedAt = res.IndexedAt.Format("2006-01-02 15:04:05")
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), res.ID.Hex())
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), res.Kind)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), res.Title)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), res.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), res.ChunkCount)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), res.TokenCount)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), res.ErrorMessage)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), res.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), indexedAt)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		utils.RespondWithInternalError(c, "Failed to build export", nil)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=resources.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// loadBrandResource fetches the :id resource and enforces brand ownership.
// A resource of another brand is reported as not found, not forbidden.
func loadBrandResource(c *gin.Context, deps ResourceDeps) (*models.Resource, bool) {
	brandID, ok := middleware.GetBrandID(c)
	if !ok {
		utils.RespondWithForbidden(c, "Token is not scoped to a brand")
		return nil, false
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid resource id", nil)
		return nil, false
	}

	res, err := deps.Resources.Get(c.Request.Context(), id)
	if err != nil || res.BrandID != brandID {
		utils.RespondWithNotFound(c, "Resource not found")
		return nil, false
	}
	return res, true
}
