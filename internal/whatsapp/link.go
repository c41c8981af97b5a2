package whatsapp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// LinkDevice pairs a new WhatsApp device via QR code in the terminal.
// Any previously stored device is removed first: GetFirstDevice would
// otherwise hand back an invalidated session and the connect would 401.
func LinkDevice(dbPath string) error {
	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}

	old, err := container.GetAllDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list existing devices: %w", err)
	}
	for _, d := range old {
		fmt.Printf("Removing stale device: %s\n", deviceJID(d.ID))
		_ = d.Delete(context.Background())
	}

	client := whatsmeow.NewClient(container.NewDevice(), &waLogger{module: "client"})

	// The QR "success" event only fires when the scan is accepted; the
	// client still has to finish the initial sync (pre-keys, identity, app
	// state). Disconnecting before Connected leaves the pairing broken.
	connected := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Disconnect()

	fmt.Println("Scan the QR code below with your WhatsApp app:")
	fmt.Println("  WhatsApp > Settings > Linked Devices > Link a Device")
	fmt.Println()

	for item := range qrChan {
		switch item.Event {
		case "code":
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			fmt.Println()
			fmt.Println("Waiting for scan...")
		case "success":
			fmt.Println("\nScan accepted, completing initial sync...")
			select {
			case <-connected:
			case <-time.After(30 * time.Second):
				return fmt.Errorf("timed out waiting for initial sync, try again")
			}
			fmt.Printf("Paired successfully! JID: %s\n", client.Store.ID)
			fmt.Println("You can now start the announcer with 'announcer run'.")
			return nil
		case "timeout":
			return fmt.Errorf("QR code expired, run the command again")
		default:
			return fmt.Errorf("pairing failed: %s", item.Event)
		}
	}

	return fmt.Errorf("QR channel closed unexpectedly")
}

// UnlinkDevice deletes every stored device, forcing a re-pair.
func UnlinkDevice(dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no WhatsApp session found (no %s)", dbPath)
	}

	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}

	devices, err := container.GetAllDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no paired devices found")
	}

	for _, d := range devices {
		if err := d.Delete(context.Background()); err != nil {
			return fmt.Errorf("failed to delete device %s: %w", deviceJID(d.ID), err)
		}
		fmt.Printf("Removed device: %s\n", deviceJID(d.ID))
	}

	fmt.Println("WhatsApp session cleared. Run 'announcer link' to re-pair.")
	return nil
}

// DeviceStatus prints the current pairing state.
func DeviceStatus(dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Status: Not paired (no session database)")
		return nil
	}

	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}

	devices, err := container.GetAllDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("Status: Not paired")
		fmt.Println("Run 'announcer link' to pair a device.")
		return nil
	}

	for _, d := range devices {
		fmt.Println("Status: Paired")
		fmt.Printf("  JID: %s\n", deviceJID(d.ID))
	}
	return nil
}

func deviceJID(id *types.JID) string {
	if id == nil {
		return "(unknown)"
	}
	return id.String()
}
