package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/newsdigest/internal/article"
)

// ArticleStore persists run results and indexes articles for lookup by
// department and topic cluster.
type ArticleStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewArticleStore keeps run results for ttl; zero keeps them for 30 days.
func NewArticleStore(client *redis.Client, ttl time.Duration) *ArticleStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ArticleStore{client: client, ttl: ttl}
}

func runArticlesKey(runID string) string { return fmt.Sprintf("run:%s:articles", runID) }
func runIndexKey(runID string) string    { return fmt.Sprintf("run:%s:index", runID) }
func articleKey(id string) string        { return "article:" + id }
func departmentKey(dept string) string   { return "dept:" + dept }
func clusterKey(runID, cluster string) string {
	return fmt.Sprintf("run:%s:cluster:%s", runID, cluster)
}

// SaveRun stores the run's articles as one JSON document.
func (s *ArticleStore) SaveRun(ctx context.Context, runID string, arts []article.Candidate) error {
	b, err := json.Marshal(arts)
	if err != nil {
		return fmt.Errorf("marshal articles: %w", err)
	}
	return s.client.Set(ctx, runArticlesKey(runID), b, s.ttl).Err()
}

// LoadRun returns the articles saved for runID.
func (s *ArticleStore) LoadRun(ctx context.Context, runID string) ([]article.Candidate, bool, error) {
	b, err := s.client.Get(ctx, runArticlesKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var arts []article.Candidate
	if err := json.Unmarshal(b, &arts); err != nil {
		return nil, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return arts, true, nil
}

// Index writes one hash per article plus department, cluster and run sets
// in a single transaction.
func (s *ArticleStore) Index(ctx context.Context, runID string, arts []article.Candidate) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, a := range arts {
			key := articleKey(a.ID)
			p.HSet(ctx, key, articleFields(runID, a))
			p.Expire(ctx, key, s.ttl)
			p.SAdd(ctx, runIndexKey(runID), a.ID)
			if a.Department != "" {
				p.SAdd(ctx, departmentKey(a.Department), a.ID)
				p.Expire(ctx, departmentKey(a.Department), s.ttl)
			}
			if a.TopicClusterID != "" {
				p.SAdd(ctx, clusterKey(runID, a.TopicClusterID), a.ID)
				p.Expire(ctx, clusterKey(runID, a.TopicClusterID), s.ttl)
			}
		}
		p.Expire(ctx, runIndexKey(runID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %d articles: %w", len(arts), err)
	}
	return nil
}

func articleFields(runID string, a article.Candidate) map[string]interface{} {
	return map[string]interface{}{
		"run_id":               runID,
		"page":                 a.PageIndex,
		"headline":             a.Headline,
		"body":                 a.Body,
		"confidence":           a.Confidence,
		"source":               string(a.Source),
		"department":           a.Department,
		"sentiment":            a.SentimentLabel,
		"sentiment_confidence": a.SentimentConfidence,
		"cluster":              a.TopicClusterID,
	}
}

func parseArticle(id string, res map[string]string) article.Candidate {
	a := article.Candidate{
		ID:             id,
		Headline:       res["headline"],
		Body:           res["body"],
		Source:         article.Source(res["source"]),
		Department:     res["department"],
		SentimentLabel: res["sentiment"],
		TopicClusterID: res["cluster"],
	}
	a.PageIndex, _ = strconv.Atoi(res["page"])
	a.Confidence, _ = strconv.ParseFloat(res["confidence"], 64)
	a.SentimentConfidence, _ = strconv.ParseFloat(res["sentiment_confidence"], 64)
	return a
}

// Article returns one indexed article.
func (s *ArticleStore) Article(ctx context.Context, id string) (article.Candidate, bool, error) {
	res, err := s.client.HGetAll(ctx, articleKey(id)).Result()
	if err != nil {
		return article.Candidate{}, false, err
	}
	if len(res) == 0 {
		return article.Candidate{}, false, nil
	}
	return parseArticle(id, res), true, nil
}

// ByDepartment lists ids of articles indexed under dept across runs. The set
// outlives individual article hashes, so ids whose hash has expired are
// dropped from the set here.
func (s *ArticleStore) ByDepartment(ctx context.Context, dept string) ([]string, error) {
	key := departmentKey(dept)
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	exists := make([]*redis.IntCmd, len(ids))
	if _, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			exists[i] = p.Exists(ctx, articleKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("check department %s: %w", dept, err)
	}
	live, stale := liveIDs(ids, exists)
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, key, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune department %s: %w", dept, err)
		}
	}
	return live, nil
}

func liveIDs(ids []string, exists []*redis.IntCmd) (live []string, stale []interface{}) {
	for i, id := range ids {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	return live, stale
}

// ByCluster lists ids of a run's articles in one topic cluster.
func (s *ArticleStore) ByCluster(ctx context.Context, runID, cluster string) ([]string, error) {
	return s.client.SMembers(ctx, clusterKey(runID, cluster)).Result()
}
