package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"astra/internal/domain"
)

// Bolt is the durable session/cache store backing crawls, chats,
// messages and the deep-crawl frontier. bbolt serializes writers, so
// concurrent request handlers never lose updates, and every mutation
// is flushed before the call returns.
type Bolt struct {
	db *bolt.DB
}

var (
	bucketCrawls   = []byte("crawls")
	bucketURLIndex = []byte("url_index")
	bucketChats    = []byte("chats")
	bucketMessages = []byte("messages")
	bucketPages    = []byte("pages")
	bucketPageIdx  = []byte("page_index")
)

// Open creates or opens the store file and ensures all buckets exist.
func Open(path string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCrawls, bucketURLIndex, bucketChats, bucketMessages, bucketPages, bucketPageIdx} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

func (s *Bolt) CreateCrawl(url, crawlID string) (domain.Crawl, error) {
	if crawlID == "" {
		crawlID = uuid.New().String()
	}
	crawl := domain.Crawl{
		ID:        crawlID,
		URL:       url,
		Status:    domain.CrawlPending,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketCrawls), crawlID, crawl); err != nil {
			return err
		}
		return tx.Bucket(bucketURLIndex).Put([]byte(url), []byte(crawlID))
	})
	return crawl, err
}

func (s *Bolt) GetCrawl(crawlID string) (domain.Crawl, error) {
	var crawl domain.Crawl
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketCrawls), crawlID, &crawl)
	})
	return crawl, err
}

// FindCrawlByURL resolves the cache-hit path; matching is exact.
func (s *Bolt) FindCrawlByURL(url string) (domain.Crawl, error) {
	var crawl domain.Crawl
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketURLIndex).Get([]byte(url))
		if id == nil {
			return domain.ErrNotFound
		}
		return getJSON(tx.Bucket(bucketCrawls), string(id), &crawl)
	})
	return crawl, err
}

// UpdateCrawlStatus mutates status/depth/link fields; zero-valued
// numeric arguments leave the stored value unchanged.
func (s *Bolt) UpdateCrawlStatus(crawlID string, status domain.CrawlStatus, currentDepth, maxDepth, totalLinks int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var crawl domain.Crawl
		if err := getJSON(tx.Bucket(bucketCrawls), crawlID, &crawl); err != nil {
			return err
		}
		if status != "" {
			crawl.Status = status
		}
		if currentDepth > 0 {
			crawl.CurrentDepth = currentDepth
		}
		if maxDepth > 0 {
			crawl.MaxDepth = maxDepth
		}
		if totalLinks > 0 {
			crawl.TotalLinks = totalLinks
		}
		return putJSON(tx.Bucket(bucketCrawls), crawlID, crawl)
	})
}

func (s *Bolt) UpdateCrawlPageCount(crawlID string, count int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var crawl domain.Crawl
		if err := getJSON(tx.Bucket(bucketCrawls), crawlID, &crawl); err != nil {
			return err
		}
		crawl.PageCount = count
		return putJSON(tx.Bucket(bucketCrawls), crawlID, crawl)
	})
}

func (s *Bolt) ListCrawls() ([]domain.Crawl, error) {
	var crawls []domain.Crawl
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCrawls).ForEach(func(k, v []byte) error {
			var crawl domain.Crawl
			if err := json.Unmarshal(v, &crawl); err != nil {
				return nil // skip malformed entries
			}
			crawls = append(crawls, crawl)
			return nil
		})
	})
	return crawls, err
}

func (s *Bolt) CreateChat(crawlID string) (domain.Chat, error) {
	chat := domain.Chat{
		ID:        uuid.New().String(),
		CrawlID:   crawlID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketChats), chat.ID, chat)
	})
	return chat, err
}

func (s *Bolt) GetChat(chatID string) (domain.Chat, error) {
	var chat domain.Chat
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketChats), chatID, &chat)
	})
	return chat, err
}

func (s *Bolt) UpdateChatSummary(chatID, summary string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var chat domain.Chat
		if err := getJSON(tx.Bucket(bucketChats), chatID, &chat); err != nil {
			return err
		}
		chat.Summary = summary
		return putJSON(tx.Bucket(bucketChats), chatID, chat)
	})
}

func (s *Bolt) ListChats() ([]domain.Chat, error) {
	var chats []domain.Chat
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			var chat domain.Chat
			if err := json.Unmarshal(v, &chat); err != nil {
				return nil
			}
			chats = append(chats, chat)
			return nil
		})
	})
	return chats, err
}

// AppendMessage appends to the chat's ordered message log. Messages
// live in a per-chat sub-bucket keyed by sequence number.
func (s *Bolt) AppendMessage(chatID string, msg domain.Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketChats).Get([]byte(chatID)) == nil {
			return domain.ErrNotFound
		}
		b, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chatID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (s *Bolt) ListMessages(chatID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketChats).Get([]byte(chatID)) == nil {
			return domain.ErrNotFound
		}
		b := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var msg domain.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return nil
			}
			messages = append(messages, msg)
			return nil
		})
	})
	return messages, err
}

// StorePage records a scraped or discovered page, indexing it by
// (crawl, URL) for frontier uniqueness.
func (s *Bolt) StorePage(page domain.PendingPage) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketPages), page.ID, page); err != nil {
			return err
		}
		return tx.Bucket(bucketPageIdx).Put(pageIdxKey(page.CrawlID, page.URL), []byte(page.ID))
	})
}

// EnqueuePending adds a discovered URL to the crawl frontier. A second
// enqueue of the same (crawl, URL) pair returns ErrDuplicatePage.
func (s *Bolt) EnqueuePending(crawlID, url, discoveredFrom string, depth int) (domain.PendingPage, error) {
	page := domain.PendingPage{
		ID:             uuid.New().String(),
		CrawlID:        crawlID,
		URL:            url,
		Depth:          depth,
		DiscoveredFrom: discoveredFrom,
		Status:         domain.PagePending,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketPageIdx)
		key := pageIdxKey(crawlID, url)
		if idx.Get(key) != nil {
			return domain.ErrDuplicatePage
		}
		if err := putJSON(tx.Bucket(bucketPages), page.ID, page); err != nil {
			return err
		}
		return idx.Put(key, []byte(page.ID))
	})
	if err != nil {
		return domain.PendingPage{}, err
	}
	return page, nil
}

// DequeuePendingBatch returns up to limit pending pages of a crawl at
// the given depth, oldest first.
func (s *Bolt) DequeuePendingBatch(crawlID string, depth, limit int) ([]domain.PendingPage, error) {
	var pages []domain.PendingPage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).ForEach(func(k, v []byte) error {
			var page domain.PendingPage
			if err := json.Unmarshal(v, &page); err != nil {
				return nil
			}
			if page.CrawlID == crawlID && page.Depth == depth && page.Status == domain.PagePending {
				pages = append(pages, page)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortPagesByAge(pages)
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

func (s *Bolt) MarkPageStatus(pageID string, status domain.PageStatus, title string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var page domain.PendingPage
		if err := getJSON(tx.Bucket(bucketPages), pageID, &page); err != nil {
			return err
		}
		page.Status = status
		if title != "" {
			page.Title = title
		}
		return putJSON(tx.Bucket(bucketPages), pageID, page)
	})
}

func (s *Bolt) ListPages(crawlID string) ([]domain.PendingPage, error) {
	var pages []domain.PendingPage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).ForEach(func(k, v []byte) error {
			var page domain.PendingPage
			if err := json.Unmarshal(v, &page); err != nil {
				return nil
			}
			if page.CrawlID == crawlID {
				pages = append(pages, page)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortPagesByAge(pages)
	return pages, nil
}

func sortPagesByAge(pages []domain.PendingPage) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].CreatedAt.Before(pages[j].CreatedAt) })
}

func pageIdxKey(crawlID, url string) []byte {
	return []byte(fmt.Sprintf("%s|%s", crawlID, url))
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bolt.Bucket, key string, v any) error {
	data := b.Get([]byte(key))
	if data == nil {
		return domain.ErrNotFound
	}
	return json.Unmarshal(data, v)
}
