package hal

import (
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
	"testing"
)

func TestNetPortRecvEmpty(t *testing.T) {
	a, _ := NewNetPipe()

	var buf [MaxPacketBytes]byte
	if _, err := a.Recv(buf[:]); !errors.Is(err, ErrRxEmpty) {
		t.Fatalf("Recv() err = %v, want %v", err, ErrRxEmpty)
	}
}

func TestNetPortSendFull(t *testing.T) {
	a, b := NewNetPipe()

	for i := 0; i < ringSlots; i++ {
		if err := a.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send() err = %v at slot %d, want nil", err, i)
		}
	}
	if err := a.Send([]byte{0}); !errors.Is(err, ErrTxFull) {
		t.Fatalf("Send() err = %v when full, want %v", err, ErrTxFull)
	}

	var buf [MaxPacketBytes]byte
	for i := 0; i < ringSlots; i++ {
		n, err := b.Recv(buf[:])
		if err != nil {
			t.Fatalf("Recv() err = %v at slot %d, want nil", err, i)
		}
		if n != 1 || buf[0] != byte(i) {
			t.Fatalf("Recv() = %v, want [%d]", buf[:n], i)
		}
	}
}

func TestNetPortOversize(t *testing.T) {
	a, _ := NewNetPipe()
	if err := a.Send(make([]byte, MaxPacketBytes+1)); !errors.Is(err, ErrPacketSize) {
		t.Fatalf("Send() err = %v, want %v", err, ErrPacketSize)
	}
}

func TestNetPortNotifiesPeer(t *testing.T) {
	a, b := NewNetPipe()
	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("Send() err = %v", err)
	}
	select {
	case <-b.RxReady():
	default:
		t.Fatalf("RxReady() did not fire on the receiving port")
	}
	select {
	case <-a.RxReady():
		t.Fatalf("RxReady() fired on the sending port")
	default:
	}
}

func TestNetPortConcurrentProducers(t *testing.T) {
	oldProcs := runtime.GOMAXPROCS(1)
	defer runtime.GOMAXPROCS(oldProcs)

	const (
		producers = 4
		perProd   = 2_000
		total     = producers * perProd
	)

	a, b := NewNetPipe()

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(producers)
	for producerID := 0; producerID < producers; producerID++ {
		go func(producerID int) {
			defer wg.Done()
			<-start
			var pkt [4]byte
			for i := 0; i < perProd; i++ {
				binary.LittleEndian.PutUint32(pkt[:], uint32(producerID*perProd+i))
				for a.Send(pkt[:]) != nil {
					runtime.Gosched()
				}
			}
		}(producerID)
	}
	close(start)

	seen := make([]bool, total)
	var buf [MaxPacketBytes]byte
	for i := 0; i < total; i++ {
		n, err := b.Recv(buf[:])
		for err != nil {
			runtime.Gosched()
			n, err = b.Recv(buf[:])
		}
		if n != 4 {
			t.Fatalf("Recv() n = %d, want 4", n)
		}
		id := binary.LittleEndian.Uint32(buf[:4])
		if int(id) >= total {
			t.Fatalf("Recv() id = %d, want < %d", id, total)
		}
		if seen[id] {
			t.Fatalf("Recv() duplicate id %d", id)
		}
		seen[id] = true
	}

	wg.Wait()
}
