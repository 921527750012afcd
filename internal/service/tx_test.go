package service

import "context"

type testTxRepos struct {
	items      ItemRepositoryInterface
	indexJobs  IndexJobRepositoryInterface
	ingestions IngestionRepositoryInterface
}

func (t *testTxRepos) Items() ItemRepositoryInterface {
	return t.items
}

func (t *testTxRepos) IndexJobs() IndexJobRepositoryInterface {
	return t.indexJobs
}

func (t *testTxRepos) Ingestions() IngestionRepositoryInterface {
	return t.ingestions
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
