package network

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// skydnsRecord is the value shape CoreDNS's etcd plugin expects.
type skydnsRecord struct {
	Host string `json:"host"`
}

// PublishSkydnsRecord writes /skydns/firecracker/<name> = {"host":"<ip>"}
// so CoreDNS can answer `<name>.firecracker` (spec.md §4.7 step 6).
func PublishSkydnsRecord(ctx context.Context, endpoints []string, name, ip string) error {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to etcd: %w", err)
	}
	defer cli.Close()

	value, err := json.Marshal(skydnsRecord{Host: ip})
	if err != nil {
		return err
	}

	putCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := cli.Put(putCtx, SkydnsEtcdPrefix+name, string(value)); err != nil {
		return fmt.Errorf("put skydns record for %s: %w", name, err)
	}

	return nil
}
