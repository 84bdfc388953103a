package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/notification"
	"github.com/tasklight/tasklight/internal/web/sse"
)

// Writes to a dropped file settle before we parse it.
const debounceDelay = 2 * time.Second

// importFile is the JSON document accepted in the drop directory
type importFile struct {
	Todos []importTodo `json:"todos"`
}

type importTodo struct {
	Text   string     `json:"text"`
	DueAt  *time.Time `json:"due_at"`
	Labels []string   `json:"labels"`
}

// Importer watches a drop directory and turns JSON files placed there into
// todos. Successfully imported files are removed; files that cannot be
// parsed are renamed with an .err suffix so they are not retried.
type Importer struct {
	db       *database.DB
	loader   *config.Loader
	broker   *sse.Broker
	notifier *notification.Manager
	watcher  *fsnotify.Watcher
	dir      string
	mu       sync.RWMutex

	// Debounce tracking
	pending   map[string]*time.Timer
	pendingMu sync.Mutex

	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new importer
func New(db *database.DB, broker *sse.Broker, notifier *notification.Manager) (*Importer, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Importer{
		db:       db,
		loader:   config.NewLoader(db),
		broker:   broker,
		notifier: notifier,
		watcher:  fsWatcher,
		pending:  make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start starts watching the configured drop directory.
// Returns false without starting when importing is disabled or no directory
// is configured.
func (i *Importer) Start() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return true, nil
	}

	if !i.loader.Bool("import.enabled", false) {
		return false, nil
	}

	dir := i.loader.String("import.dir", "")
	if dir == "" {
		log.Warn().Msg("Import enabled but no import directory configured")
		return false, nil
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("failed to resolve import directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create import directory: %w", err)
	}
	if err := i.watcher.Add(absDir); err != nil {
		return false, fmt.Errorf("failed to watch import directory: %w", err)
	}
	i.dir = absDir

	i.running = true
	i.wg.Add(1)
	go i.eventLoop()

	// Pick up files dropped while we were not running
	go i.scanExisting()

	log.Info().Str("dir", absDir).Msg("Importer started")
	return true, nil
}

// Stop stops the importer
func (i *Importer) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	i.mu.Unlock()

	i.cancel()
	i.watcher.Close()
	i.wg.Wait()

	// Cancel any pending debounce timers
	i.pendingMu.Lock()
	for _, timer := range i.pending {
		timer.Stop()
	}
	i.pending = make(map[string]*time.Timer)
	i.pendingMu.Unlock()

	log.Info().Msg("Importer stopped")
}

// IsRunning returns whether the importer is currently running
func (i *Importer) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// eventLoop processes filesystem events
func (i *Importer) eventLoop() {
	defer i.wg.Done()

	for {
		select {
		case <-i.ctx.Done():
			return

		case event, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			i.handleEvent(event)

		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Importer watcher error")
		}
	}
}

// handleEvent schedules a debounced import for created or written files
func (i *Importer) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isImportFile(event.Name) {
		return
	}

	i.scheduleImport(event.Name)
}

// scheduleImport schedules an import with debouncing so partially written
// files are not parsed
func (i *Importer) scheduleImport(path string) {
	i.pendingMu.Lock()
	defer i.pendingMu.Unlock()

	if existing, ok := i.pending[path]; ok {
		existing.Reset(debounceDelay)
		return
	}

	i.pending[path] = time.AfterFunc(debounceDelay, func() {
		i.pendingMu.Lock()
		delete(i.pending, path)
		i.pendingMu.Unlock()

		i.importFile(path)
	})

	log.Debug().Str("path", path).Msg("Scheduled debounced import")
}

// scanExisting imports files already present in the drop directory
func (i *Importer) scanExisting() {
	i.mu.RLock()
	dir := i.dir
	i.mu.RUnlock()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if isImportFile(path) {
			i.scheduleImport(path)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to scan import directory for existing files")
	}
}

// importFile parses a dropped file and creates its todos
func (i *Importer) importFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read import file")
		return
	}

	var doc importFile
	if err := json.Unmarshal(data, &doc); err != nil {
		i.rejectFile(path, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if len(doc.Todos) == 0 {
		i.rejectFile(path, fmt.Errorf("no todos in file"))
		return
	}

	imported := 0
	for idx, entry := range doc.Todos {
		text := strings.TrimSpace(entry.Text)
		if text == "" || len([]rune(text)) > 100 {
			i.rejectFile(path, fmt.Errorf("todo %d: text must be 1-100 characters", idx))
			return
		}

		labelIDs := make([]int64, 0, len(entry.Labels))
		for _, name := range entry.Labels {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			label, err := i.db.GetOrCreateLabel(name)
			if err != nil {
				log.Error().Err(err).Str("label", name).Str("path", path).Msg("Failed to resolve label for import")
				return
			}
			labelIDs = append(labelIDs, label.ID)
		}

		todo, err := i.db.CreateTodo(text, entry.DueAt, labelIDs)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to create imported todo")
			return
		}

		if i.broker != nil {
			i.broker.Broadcast(sse.Event{Type: sse.EventTodoCreated, Data: todo})
		}
		imported++
	}

	if err := os.Remove(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove imported file")
	}

	log.Info().Int("todos", imported).Str("path", path).Msg("Import completed")

	if i.broker != nil {
		i.broker.Broadcast(sse.Event{
			Type: sse.EventImportCompleted,
			Data: map[string]any{
				"file":  filepath.Base(path),
				"todos": imported,
			},
		})
	}
	if i.notifier != nil {
		i.notifier.Notify(notification.Event{
			Type:    notification.EventImportCompleted,
			Title:   "Import completed",
			Message: fmt.Sprintf("Imported %d todos from %s", imported, filepath.Base(path)),
		})
	}
}

// rejectFile renames a bad file so it is not retried on the next scan
func (i *Importer) rejectFile(path string, reason error) {
	log.Warn().Err(reason).Str("path", path).Msg("Rejecting import file")

	if err := os.Rename(path, path+".err"); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to rename rejected import file")
	}

	if i.notifier != nil {
		i.notifier.Notify(notification.Event{
			Type:    notification.EventImportFailed,
			Title:   "Import failed",
			Message: fmt.Sprintf("%s: %v", filepath.Base(path), reason),
		})
	}
}

// isImportFile reports whether a path looks like a dropped import document
func isImportFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
